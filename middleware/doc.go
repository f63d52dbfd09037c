// Package middleware adapts an authgate.Gate to net/http.
//
// # Handlers
//
//   - [Guard] requires a valid bearer token and puts its Principal in the
//     request context ([PrincipalFromContext]).
//   - [Throttle] spends one unit of an operation's request budget per request,
//     keyed by [ClientIdentity].
//
// Rejections are written with [WriteError] as {"code":...,"message":...} using
// the gate's error vocabulary.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gate calls. Token parsing, Redis
// access and the accept/reject decision stay in the Gate.
package middleware
