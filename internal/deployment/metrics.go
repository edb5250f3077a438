package deployment

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caxtonio/agentcore/internal/domain"
)

// metricsSet holds the engine's Prometheus instruments, registered against
// whatever Registerer the host process provides — nil falls back to
// prometheus.DefaultRegisterer, matching internal/validator's metricsSet.
type metricsSet struct {
	deployDuration prometheus.Histogram
	outcomesTotal  *prometheus.CounterVec
}

func newMetricsSet(reg prometheus.Registerer) (*metricsSet, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "caxton",
		Subsystem: "deployment",
		Name:      "deploy_duration_seconds",
		Help:      "Time spent running a single agent deployment.",
		Buckets:   prometheus.DefBuckets,
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caxton",
		Subsystem: "deployment",
		Name:      "deployments_total",
		Help:      "Count of completed deployments by outcome.",
	}, []string{"status"})

	for _, c := range []prometheus.Collector{duration, outcomes} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &metricsSet{deployDuration: duration, outcomesTotal: outcomes}, nil
}

func (m *metricsSet) observe(status domain.DeploymentStatus, duration float64) {
	m.deployDuration.Observe(duration)
	m.outcomesTotal.WithLabelValues(string(status)).Inc()
}
