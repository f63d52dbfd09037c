package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity names the caller for request-rate budgets: the bearer token
// when one is sent, otherwise the host part of the remote address.
func ClientIdentity(r *http.Request) string {
	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return RemoteHost(r)
}

// RemoteHost returns r.RemoteAddr without its port.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
