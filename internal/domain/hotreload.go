package domain

import "time"

// RollbackTrigger is a predicate over ReloadMetrics that, when true, aborts
// an in-progress reload and restores the prior version (spec.md §4.3).
// Exactly one of the named fields is meaningful per value; Kind says which.
type RollbackTrigger struct {
	Kind      RollbackTriggerKind
	Threshold float64 // meaning depends on Kind
	Name      string  // only for CustomMetric
}

// RollbackTriggerKind enumerates the trigger flavors from spec.md §4.3.
type RollbackTriggerKind string

const (
	TriggerHealthCheckFailure     RollbackTriggerKind = "HealthCheckFailure"
	TriggerErrorRateThreshold     RollbackTriggerKind = "ErrorRateThreshold"
	TriggerPerformanceDegradation RollbackTriggerKind = "PerformanceDegradation"
	TriggerMemoryThreshold        RollbackTriggerKind = "MemoryThreshold"
	TriggerCustomMetric           RollbackTriggerKind = "CustomMetric"
)

// Default thresholds from spec.md §4.3.
const (
	DefaultErrorRateThreshold          = 5.0
	DefaultPerformanceDegradationPct   = 50.0
	DefaultHealthCheckSuccessRateFloor = 50.0
	DefaultPreservePreviousVersions    = 3
	DefaultRollbackTimeout             = 60 * time.Second
)

// RollbackCapability configures automatic-rollback behavior for a hot
// reload.
type RollbackCapability struct {
	Triggers                 []RollbackTrigger
	PreservePreviousVersions uint8
	RollbackTimeout          time.Duration
}

// DefaultRollbackCapability returns the spec.md §4.3 defaults: error-rate >
// 5%, perf-degradation > 50%, the fixed health-check floor, preserve 3
// versions, 60s rollback timeout.
func DefaultRollbackCapability() RollbackCapability {
	return RollbackCapability{
		Triggers: []RollbackTrigger{
			{Kind: TriggerHealthCheckFailure, Threshold: DefaultHealthCheckSuccessRateFloor},
			{Kind: TriggerErrorRateThreshold, Threshold: DefaultErrorRateThreshold},
			{Kind: TriggerPerformanceDegradation, Threshold: DefaultPerformanceDegradationPct},
		},
		PreservePreviousVersions: DefaultPreservePreviousVersions,
		RollbackTimeout:          DefaultRollbackTimeout,
	}
}

// ShouldTriggerRollback evaluates every configured trigger against the
// sampled metrics; any single match fires.
func (c RollbackCapability) ShouldTriggerRollback(m ReloadMetrics) (bool, RollbackTrigger) {
	for _, t := range c.Triggers {
		switch t.Kind {
		case TriggerHealthCheckFailure:
			if m.HealthCheckSuccessRate < t.Threshold {
				return true, t
			}
		case TriggerErrorRateThreshold:
			if m.ErrorRatePercentage > t.Threshold {
				return true, t
			}
		case TriggerPerformanceDegradation:
			if m.PerformanceDegradationPercentage > t.Threshold {
				return true, t
			}
		case TriggerMemoryThreshold:
			if float64(m.MemoryPeak) > t.Threshold {
				return true, t
			}
		case TriggerCustomMetric:
			// Extension point: no-op by default, per spec.md §4.3.
		}
	}
	return false, RollbackTrigger{}
}

// HotReloadConfig parameterizes a hot reload (spec.md §3).
type HotReloadConfig struct {
	Strategy               HotReloadStrategy
	TrafficSplit           TrafficSplitPercentage
	DrainTimeout           DrainTimeout
	WarmupDuration         time.Duration
	RollbackCapability     RollbackCapability
	ResourceRequirements   ResourceRequirements
	ProgressiveRollout     bool
	PreserveState          bool
}

// HotReloadRequest carries everything the Hot-Reload Engine needs for one
// reload.
type HotReloadRequest struct {
	ReloadID        ReloadID
	AgentID         AgentID
	FromVersion     AgentVersion
	ToVersion       AgentVersion
	ToVersionNumber VersionNumber
	Config          HotReloadConfig
	WasmBytes       []byte
	// FromVersionWasmBytes is the retiring version's module bytes, carried
	// along so the engine can snapshot them for a later external rollback
	// (spec.md §4.4). Empty if the caller has none on hand.
	FromVersionWasmBytes []byte
}

// ReloadMetrics are the streaming counters rollback triggers evaluate
// (spec.md §3).
type ReloadMetrics struct {
	RequestsProcessed                uint64
	RequestsFailed                   uint64
	ErrorRatePercentage               float64
	AverageResponseTimeMs             float64
	PerformanceDegradationPercentage float64
	MemoryPeak                        uint64
	MemoryAverage                     uint64
	HealthCheckSuccessRate            float64
	ObservedTrafficSplit              TrafficSplitPercentage
	SampledAt                         time.Time
}

// ResourceUsageSnapshot captures point-in-time resource consumption for a
// version snapshot.
type ResourceUsageSnapshot struct {
	MemoryBytes uint64
	FuelUsed    uint64
	Requests    uint64
}

// VersionSnapshot preserves a prior version's code and resource usage for
// rollback (spec.md §3).
type VersionSnapshot struct {
	Version       AgentVersion
	VersionNumber VersionNumber
	WasmBytes     []byte
	CreatedAt     time.Time
	ResourceUsage ResourceUsageSnapshot
	// Resources is what the version was deployed with, carried along so an
	// external rollback can recreate it identically (spec.md §4.3).
	Resources ResourceRequirements
}

// HotReloadResult is the outcome of a hot_reload_agent operation.
type HotReloadResult struct {
	ReloadID           ReloadID
	AgentID            AgentID
	Status             HotReloadStatus
	StartedAt          time.Time
	CompletedAt        time.Time
	ErrorMessage       *string
	RollbackReason     *string
	Metrics            ReloadMetrics
	PreservedVersions  []VersionSnapshot
}

// ErrorMessageOrDefault returns ErrorMessage if set, else a generic
// fallback — used when recording a lifecycle failure reason that must
// never be empty.
func (r HotReloadResult) ErrorMessageOrDefault() string {
	if r.ErrorMessage != nil {
		return *r.ErrorMessage
	}
	return "hot reload failed"
}
