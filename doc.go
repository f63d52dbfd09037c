// Package authgate is the authentication and abuse-throttling gate of the
// account platform. It checks credentials, issues and verifies HS512 bearer
// tokens, and enforces per-identity attempt budgets over Redis.
//
// A [Gate] is assembled with [New] and [Builder.Build] and is safe for concurrent
// use. It exposes two core operations:
//
//   - [Gate.Login] consults the login block for the normalized username, then
//     the [CredentialValidator]. Failures are counted; the failure that reaches
//     the configured threshold installs a block, and blocked usernames are
//     rejected without reaching the validator. Success clears the count and
//     returns a token.
//   - [Gate.Introspect] verifies a token and returns its [Principal]. All
//     verification failures collapse into [ErrInvalidToken].
//
// Request-rate budgets for other operations are enforced with [Gate.Throttle].
//
// # Failure model
//
// Counter store and validator failures reject the request with
// [ErrDependencyUnavailable]; the gate never fails open. [KindOf] maps any
// returned error to a stable [ErrorKind] with a numeric code and HTTP status.
//
// # State
//
// All counters and blocks live in Redis under rate_limit:{operation}:{suffix},
// where suffix is the last characters of the client identity. They expire on
// their own; nothing in process memory needs cleaning up.
package authgate
