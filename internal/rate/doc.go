// Package rate implements the fixed-window attempt counter and block flag that
// throttle authentication operations. All state lives in Redis so it is shared by
// every process and survives restarts.
//
// # Keys
//
//	rate_limit:{op}:{suffix}          attempt counter, TTL = window
//	rate_limit:{op}:{suffix}:blocked  block flag, TTL = block duration
//
// {suffix} is the last N characters of the client identity (N = 5 unless configured).
// Truncation buckets identities that share a suffix; it keeps keys short.
//
// # Atomicity
//
// Increment and expire-if-new run in a single Lua script, so a counter can never be
// created without a TTL even when many callers race on its creation. A block flag,
// when present, decides the outcome regardless of the counter.
//
// # What this package must NOT do
//
//   - Map errors to user-facing kinds (the gate does that).
//   - Be imported outside the authgate module.
package rate
