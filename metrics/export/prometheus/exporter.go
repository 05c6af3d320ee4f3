package prometheus

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() shelfauth.MetricsSnapshot
	MailDropped() uint64
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from engine.
func NewPrometheusExporter(engine *shelfauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any source
// with the Engine's snapshot methods.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render with the Prometheus content type.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, p.Render())
	})
}

// Render returns the current metrics. It is empty when metrics are disabled and
// no mail was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.MailDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}
	values := internaldefs.Values(snapshot, dropped)

	var b strings.Builder
	b.Grow(4096)
	for _, f := range internaldefs.Families {
		writeHeader(&b, f.Name, f.Help, "counter")
		for _, m := range f.Members {
			b.WriteString(f.Name)
			if f.Label != "" {
				writeLabel(&b, f.Label, m.Value)
			}
			writeValue(&b, strconv.FormatUint(values[m.ID], 10))
		}
	}

	for _, h := range internaldefs.Histograms {
		if _, ok := snapshot.Histograms[h.ID]; !ok {
			continue
		}
		point := internaldefs.Point(snapshot, h.ID)
		writeHeader(&b, h.Name, h.Help, "histogram")
		for i, le := range internaldefs.BucketLabels {
			b.WriteString(h.Name)
			b.WriteString("_bucket")
			writeLabel(&b, "le", le)
			writeValue(&b, strconv.FormatUint(point.Buckets[i], 10))
		}
		b.WriteString(h.Name)
		b.WriteString("_sum")
		writeValue(&b, strconv.FormatFloat(point.Sum.Seconds(), 'g', -1, 64))
		b.WriteString(h.Name)
		b.WriteString("_count")
		writeValue(&b, strconv.FormatUint(point.Count, 10))
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeLabel(b *strings.Builder, key, value string) {
	b.WriteByte('{')
	b.WriteString(key)
	b.WriteString(`="`)
	b.WriteString(escapeLabel(value))
	b.WriteString(`"}`)
}

func writeValue(b *strings.Builder, v string) {
	b.WriteByte(' ')
	b.WriteString(v)
	b.WriteByte('\n')
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func escapeHelp(help string) string   { return helpEscaper.Replace(help) }
func escapeLabel(value string) string { return labelEscaper.Replace(value) }
