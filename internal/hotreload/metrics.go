package hotreload

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caxtonio/agentcore/internal/domain"
)

// metricsSet holds the engine's Prometheus instruments, registered against
// whatever Registerer the host process provides — nil falls back to
// prometheus.DefaultRegisterer, matching internal/validator's metricsSet.
type metricsSet struct {
	reloadDuration prometheus.Histogram
	outcomesTotal  *prometheus.CounterVec
	rollbacksTotal *prometheus.CounterVec
}

func newMetricsSet(reg prometheus.Registerer) (*metricsSet, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "caxton",
		Subsystem: "hotreload",
		Name:      "reload_duration_seconds",
		Help:      "Time spent running a single agent hot reload.",
		Buckets:   prometheus.DefBuckets,
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caxton",
		Subsystem: "hotreload",
		Name:      "reloads_total",
		Help:      "Count of completed hot reloads by outcome.",
	}, []string{"status"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caxton",
		Subsystem: "hotreload",
		Name:      "rollbacks_total",
		Help:      "Count of automatic rollbacks by trigger reason.",
	}, []string{"reason"})

	for _, c := range []prometheus.Collector{duration, outcomes, rollbacks} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &metricsSet{reloadDuration: duration, outcomesTotal: outcomes, rollbacksTotal: rollbacks}, nil
}

func (m *metricsSet) observe(status domain.HotReloadStatus, duration float64) {
	m.reloadDuration.Observe(duration)
	m.outcomesTotal.WithLabelValues(string(status)).Inc()
}

func (m *metricsSet) recordRollback(reason string) {
	m.rollbacksTotal.WithLabelValues(reason).Inc()
}
