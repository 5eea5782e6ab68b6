// Package prometheus bridges the workpool core metrics hooks to
// Prometheus collectors.
package prometheus

import (
	"errors"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/workpool-dev/workpool/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskFailedTotal     *prom.CounterVec
	taskCancelledTotal  *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for
// core.Metrics. Registering twice against the same registry reuses the
// existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "workpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"pool"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failed_total",
		Help:      "Total number of tasks that resolved Failed.",
	}, []string{"pool"})
	cancelledVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_cancelled_total",
		Help:      "Total number of handles that resolved Cancelled.",
	}, []string{"pool"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of refused submissions.",
	}, []string{"pool", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of queued tasks.",
	}, []string{"pool"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if cancelledVec, err = registerCollector(reg, cancelledVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskFailedTotal:     failedVec,
		taskCancelledTotal:  cancelledVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailed records a Failed resolution.
func (m *MetricsExporter) RecordTaskFailed(poolID string) {
	if m == nil {
		return
	}
	m.taskFailedTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordTaskCancelled records a Cancelled resolution.
func (m *MetricsExporter) RecordTaskCancelled(poolID string) {
	if m == nil {
		return
	}
	m.taskCancelledTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordTaskRejected records a refused submission.
func (m *MetricsExporter) RecordTaskRejected(poolID string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordQueueDepth records the current queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// registerCollector registers c, reusing an already-registered collector
// of the same identity.
func registerCollector[C prom.Collector](reg prom.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are := prom.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}
