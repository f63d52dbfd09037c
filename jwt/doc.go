// Package jwt issues and verifies HS512 bearer tokens carrying a principal's id,
// username and roles.
//
// Verification failures are reported as one of three sentinel kinds
// ([ErrMalformed], [ErrInvalidSignature], [ErrExpired]) so callers can log the
// reason while presenting a single "invalid token" outcome.
package jwt
