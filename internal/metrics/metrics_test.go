package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecordRow(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordRow("s", "t", OutcomeWritten, time.Millisecond)
	p.RecordRow("s", "t", OutcomeWritten, time.Millisecond)
	p.RecordRow("s", "t", OutcomeFailed, time.Millisecond)

	if got := testutil.ToFloat64(p.rows.WithLabelValues("s", "t", OutcomeWritten)); got != 2 {
		t.Errorf("written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.rows.WithLabelValues("s", "t", OutcomeFailed)); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(p.rowDuration); n != 1 {
		t.Errorf("row duration series = %d, want 1", n)
	}
}

func TestPrometheusRecordUpload(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	p.RecordUpload("s", "t", 10, 0, time.Second)
	p.RecordUpload("s", "t", 10, 3, time.Second)

	if got := testutil.ToFloat64(p.uploads.WithLabelValues("s", "t", "ok")); got != 1 {
		t.Errorf("ok uploads = %v", got)
	}
	if got := testutil.ToFloat64(p.uploads.WithLabelValues("s", "t", "partial")); got != 1 {
		t.Errorf("partial uploads = %v", got)
	}
}

func TestPrometheusInFlight(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	p.InFlight(3)
	p.InFlight(-1)
	if got := testutil.ToFloat64(p.inflight); got != 2 {
		t.Errorf("inflight = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	p := NewPrometheus(reg)
	p.RecordRow("s", "t", OutcomeUnchanged, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `propeire_rows_total{outcome="unchanged",schema="s",table="t"} 1`) {
		t.Errorf("metrics output missing row counter:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing runtime collector")
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordRow("s", "t", OutcomeWritten, 0)
	r.RecordUpload("s", "t", 1, 0, 0)
	r.InFlight(1)
}
