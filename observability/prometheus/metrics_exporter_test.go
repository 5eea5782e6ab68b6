package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/workpool-dev/workpool/core"
)

// TestMetricsExporter_Records verifies each core.Metrics hook lands in its
// collector with the pool label applied.
func TestMetricsExporter_Records(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetricsExporter("workpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter: %v", err)
	}

	m.RecordTaskDuration("p1", 150*time.Millisecond)
	m.RecordTaskDuration("p1", 300*time.Millisecond)
	m.RecordTaskFailed("p1")
	m.RecordTaskCancelled("p1")
	m.RecordTaskCancelled("p1")
	m.RecordTaskRejected("p1", "queue full")
	m.RecordQueueDepth("p1", 7)

	if got := testutil.ToFloat64(m.taskFailedTotal.WithLabelValues("p1")); got != 1 {
		t.Errorf("task_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskCancelledTotal.WithLabelValues("p1")); got != 2 {
		t.Errorf("task_cancelled_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.taskRejectedTotal.WithLabelValues("p1", "queue full")); got != 1 {
		t.Errorf("task_rejected_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("p1")); got != 7 {
		t.Errorf("queue_depth = %v, want 7", got)
	}

	// Histogram sample count and sum come from the gathered families.
	fam := gatherFamily(t, reg, "workpool_task_duration_seconds")
	h := findMetric(t, fam, "pool", "p1").GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("duration sample count = %d, want 2", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 0.44 || sum > 0.46 {
		t.Errorf("duration sample sum = %v, want 0.45", sum)
	}
}

// TestMetricsExporter_EmptyLabelFallback verifies empty pool IDs and
// reasons are normalized rather than producing empty label values.
func TestMetricsExporter_EmptyLabelFallback(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetricsExporter("workpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter: %v", err)
	}

	m.RecordTaskFailed("")
	m.RecordTaskRejected("", "")

	if got := testutil.ToFloat64(m.taskFailedTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("task_failed_total{pool=unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskRejectedTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Errorf("task_rejected_total{unknown,unknown} = %v, want 1", got)
	}
}

// TestMetricsExporter_ReRegister verifies two exporters on one registry
// share collectors instead of failing registration.
func TestMetricsExporter_ReRegister(t *testing.T) {
	reg := prom.NewRegistry()

	first, err := NewMetricsExporter("workpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter: %v", err)
	}
	second, err := NewMetricsExporter("workpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter: %v", err)
	}

	first.RecordTaskFailed("p1")
	second.RecordTaskFailed("p1")

	if got := testutil.ToFloat64(second.taskFailedTotal.WithLabelValues("p1")); got != 2 {
		t.Errorf("shared task_failed_total = %v, want 2", got)
	}
}

// TestMetricsExporter_AsPoolHook verifies the exporter satisfies the hook
// interface and tolerates the nil receiver used when metrics are disabled.
func TestMetricsExporter_AsPoolHook(t *testing.T) {
	var m core.Metrics = (*MetricsExporter)(nil)
	m.RecordTaskDuration("p1", time.Second)
	m.RecordTaskFailed("p1")
	m.RecordTaskCancelled("p1")
	m.RecordTaskRejected("p1", "shutdown")
	m.RecordQueueDepth("p1", 1)
}

func gatherFamily(t *testing.T, reg *prom.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func findMetric(t *testing.T, fam *dto.MetricFamily, labelName, labelValue string) *dto.Metric {
	t.Helper()
	for _, m := range fam.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == labelName && l.GetValue() == labelValue {
				return m
			}
		}
	}
	t.Fatalf("no metric with %s=%s in %s", labelName, labelValue, fam.GetName())
	return nil
}
