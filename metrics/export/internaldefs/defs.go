package internaldefs

import (
	"github.com/r2s/authgate"
)

// CounterDef names one gate counter for exporters.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one gate latency histogram for exporters.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: authgate.MetricLoginRateLimited, Name: "authgate_login_rate_limited_total", Help: "Logins rejected while the username was blocked."},
	{ID: authgate.MetricLoginBlockInstalled, Name: "authgate_login_block_installed_total", Help: "Login blocks installed after repeated failures."},
	{ID: authgate.MetricIntrospectSuccess, Name: "authgate_introspect_success_total", Help: "Tokens that verified."},
	{ID: authgate.MetricIntrospectInvalid, Name: "authgate_introspect_invalid_total", Help: "Tokens that failed verification."},
	{ID: authgate.MetricTokenExpired, Name: "authgate_token_expired_total", Help: "Tokens rejected as expired."},
	{ID: authgate.MetricTokenMalformed, Name: "authgate_token_malformed_total", Help: "Tokens rejected as malformed."},
	{ID: authgate.MetricTokenSignatureInvalid, Name: "authgate_token_signature_invalid_total", Help: "Tokens rejected for a bad signature."},
	{ID: authgate.MetricThrottleDenied, Name: "authgate_throttle_denied_total", Help: "Requests over their operation budget."},
	{ID: authgate.MetricDependencyUnavailable, Name: "authgate_dependency_unavailable_total", Help: "Requests rejected because the store or validator failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricLoginLatency, Name: "authgate_login_latency_seconds", Help: "Login latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "authgate_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
