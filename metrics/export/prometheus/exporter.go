package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() shopauth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders engine metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *shopauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from anything exposing a snapshot and
// the audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var w expositionWriter
	w.Grow(4096)
	for _, def := range internaldefs.CounterDefs {
		w.header(def.Name, def.Help, "counter")
		w.sample(def.Name, "", snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snap.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		w.header(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			w.sample(def.Name+"_bucket", le, cumulative[i])
		}
		w.WriteString(def.Name)
		w.WriteString("_sum ")
		w.WriteString(strconv.FormatFloat(snap.HistogramSums[def.ID].Seconds(), 'g', -1, 64))
		w.WriteByte('\n')
		w.sample(def.Name+"_count", "", cumulative[internaldefs.BucketCount-1])
	}
	w.header("shopauth_audit_dropped_total", "Audit events dropped because the sink was full.", "counter")
	w.sample("shopauth_audit_dropped_total", "", dropped)

	return w.String()
}

type expositionWriter struct {
	strings.Builder
}

func (w *expositionWriter) header(name, help, kind string) {
	w.WriteString("# HELP ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(escapeHelp(help))
	w.WriteString("\n# TYPE ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(kind)
	w.WriteByte('\n')
}

// sample writes one line; le adds a bucket label when non-empty.
func (w *expositionWriter) sample(name, le string, value uint64) {
	w.WriteString(name)
	if le != "" {
		w.WriteString(`{le="`)
		w.WriteString(le)
		w.WriteString(`"}`)
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(value, 10))
	w.WriteByte('\n')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
