// Package prometheus renders shelfauth metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] wraps a [shelfauth.Engine] and exposes an
// [http.Handler]. Related counters share a family name and differ by a result
// or event label, for example shelfauth_sign_in_total{result="failure"}.
// Sign-in latency is the shelfauth_sign_in_duration_seconds histogram. Nothing
// is registered globally.
package prometheus
