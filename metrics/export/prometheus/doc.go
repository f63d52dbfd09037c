// Package prometheus publishes gate metrics through client_golang.
//
// [Collector] reads a snapshot on every scrape and emits const metrics, so the
// gate's hot path never touches the Prometheus registry. Counter names are
// authgate_*_total; the login latency histogram is
// authgate_login_latency_seconds.
//
// Nothing is registered globally; callers pick the registry.
package prometheus
