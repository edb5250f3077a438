package validator

import "github.com/prometheus/client_golang/prometheus"

// metricsSet holds the validator's Prometheus instruments, registered
// against whatever Registerer the host process provides — nil is
// accepted, in which case prometheus.DefaultRegisterer is used, matching
// how client_golang instruments are conventionally wired.
type metricsSet struct {
	validationDuration prometheus.Histogram
	failuresTotal       *prometheus.CounterVec
}

func newMetricsSet(reg prometheus.Registerer) (*metricsSet, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "caxton",
		Subsystem: "validator",
		Name:      "validation_duration_seconds",
		Help:      "Time spent validating a WASM module.",
		Buckets:   prometheus.DefBuckets,
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caxton",
		Subsystem: "validator",
		Name:      "validation_failures_total",
		Help:      "Count of validation failures by reason.",
	}, []string{"reason"})

	for _, c := range []prometheus.Collector{duration, failures} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &metricsSet{validationDuration: duration, failuresTotal: failures}, nil
}
