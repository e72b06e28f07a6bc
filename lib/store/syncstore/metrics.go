package syncstore

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

// registry holds the metric sets of all open sync stores
var registry = xsync.NewMapOf[uuid.UUID, *metrics.Set]()

// WritePrometheus writes the metrics of all open sync stores in Prometheus text format.
func WritePrometheus(w io.Writer) {
	registry.Range(func(_ uuid.UUID, set *metrics.Set) bool {
		set.WritePrometheus(w)
		return true
	})
}

// syncMetrics bundles the instrumentation of one sync store
type syncMetrics struct {
	id  uuid.UUID
	set *metrics.Set

	replayed *metrics.Counter
	failures *metrics.Counter
	dropped  *metrics.Counter
	enqueued *metrics.Counter

	replayLatency gometrics.Timer
	enqueueRate   gometrics.Meter
}

func newSyncMetrics(name string, pending func() int) *syncMetrics {
	set := metrics.NewSet()
	label := fmt.Sprintf(`{store=%q}`, name)

	m := &syncMetrics{
		id:            uuid.New(),
		set:           set,
		replayed:      set.NewCounter("skv_sync_replayed_total" + label),
		failures:      set.NewCounter("skv_sync_failures_total" + label),
		dropped:       set.NewCounter("skv_sync_dropped_total" + label),
		enqueued:      set.NewCounter("skv_sync_enqueued_total" + label),
		replayLatency: gometrics.NewTimer(),
		enqueueRate:   gometrics.NewMeter(),
	}
	set.NewGauge("skv_sync_pending"+label, func() float64 {
		return float64(pending())
	})

	registry.Store(m.id, set)
	return m
}

func (m *syncMetrics) markEnqueued() {
	m.enqueued.Inc()
	m.enqueueRate.Mark(1)
}

func (m *syncMetrics) observeReplay(start time.Time, err error) {
	m.replayLatency.UpdateSince(start)
	if err == nil {
		m.replayed.Inc()
	} else {
		m.failures.Inc()
	}
}

// close removes the metrics from the registry and stops the meter
func (m *syncMetrics) close() {
	registry.Delete(m.id)
	m.enqueueRate.Stop()
}

// Stats is a point in time summary of a sync store.
type Stats struct {
	Name          string    `json:"name"`
	Pending       int       `json:"pending"`
	Enqueued      uint64    `json:"enqueued"`
	Replayed      uint64    `json:"replayed"`
	Failures      uint64    `json:"failures"`
	Dropped       uint64    `json:"dropped"`
	EnqueueRate1m float64   `json:"enqueue_rate_1m"`
	ReplayMeanMs  float64   `json:"replay_mean_ms"`
	ReplayP99Ms   float64   `json:"replay_p99_ms"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
	LastCleanPass time.Time `json:"last_clean_pass,omitempty"`
	FailedPasses  int       `json:"failed_passes"`
}

func (m *syncMetrics) fill(stats *Stats) {
	latency := m.replayLatency.Snapshot()
	stats.Enqueued = m.enqueued.Get()
	stats.Replayed = m.replayed.Get()
	stats.Failures = m.failures.Get()
	stats.Dropped = m.dropped.Get()
	stats.EnqueueRate1m = m.enqueueRate.Rate1()
	stats.ReplayMeanMs = latency.Mean() / float64(time.Millisecond)
	stats.ReplayP99Ms = latency.Percentile(0.99) / float64(time.Millisecond)
}
