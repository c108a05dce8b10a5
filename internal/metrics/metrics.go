// Package metrics records upload outcomes for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Row outcomes.
const (
	OutcomeWritten   = "written"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Recorder receives upload events from the uploader. Implementations must be
// safe for concurrent use.
type Recorder interface {
	RecordRow(schemaName, table, outcome string, d time.Duration)
	RecordUpload(schemaName, table string, rows, failed int, d time.Duration)
	InFlight(delta int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRow(string, string, string, time.Duration)       {}
func (Nop) RecordUpload(string, string, int, int, time.Duration) {}
func (Nop) InFlight(int)                                          {}

// Prometheus is a Recorder backed by client_golang collectors.
type Prometheus struct {
	rows           *prometheus.CounterVec
	rowDuration    *prometheus.HistogramVec
	uploads        *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	inflight       prometheus.Gauge
}

var _ Recorder = (*Prometheus)(nil)
var _ Recorder = Nop{}

// NewPrometheus creates the upload collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propeire",
			Name:      "rows_total",
			Help:      "Rows processed by the uploader, by outcome.",
		}, []string{"schema", "table", "outcome"}),
		rowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "propeire",
			Name:      "row_duration_seconds",
			Help:      "Time to execute one row upsert.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"schema", "table"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propeire",
			Name:      "uploads_total",
			Help:      "Completed upload calls, by result.",
		}, []string{"schema", "table", "result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "propeire",
			Name:      "upload_duration_seconds",
			Help:      "Wall time of one upload call.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"schema", "table"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "propeire",
			Name:      "rows_inflight",
			Help:      "Rows currently executing.",
		}),
	}
	reg.MustRegister(p.rows, p.rowDuration, p.uploads, p.uploadDuration, p.inflight)
	return p
}

func (p *Prometheus) RecordRow(schemaName, table, outcome string, d time.Duration) {
	p.rows.WithLabelValues(schemaName, table, outcome).Inc()
	p.rowDuration.WithLabelValues(schemaName, table).Observe(d.Seconds())
}

func (p *Prometheus) RecordUpload(schemaName, table string, rows, failed int, d time.Duration) {
	result := "ok"
	if failed > 0 {
		result = "partial"
	}
	p.uploads.WithLabelValues(schemaName, table, result).Inc()
	p.uploadDuration.WithLabelValues(schemaName, table).Observe(d.Seconds())
}

func (p *Prometheus) InFlight(delta int) {
	p.inflight.Add(float64(delta))
}

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
