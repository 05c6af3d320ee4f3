// Package internaldefs holds the metric names, labels and bucket bounds shared
// by the Prometheus and OpenTelemetry exporters.
package internaldefs
