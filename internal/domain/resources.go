package domain

import "fmt"

// Resource limits from spec.md §6 — persisted as part of the contract.
const (
	MinMemoryLimitBytes = 1 << 20         // 1 MiB
	MaxMemoryLimitBytes = 1 << 30         // 1 GiB
	MinFuelLimit        = 10_000          // 10 000
	MaxFuelLimit        = 100_000_000     // 100 000 000
	MinDrainTimeoutSecs = 30              // enforced by the type
	MaxTrafficSplit     = 100
	MaxPreservedVersions = 255
	MaxModuleSizeBytes  = 100 << 20 // 100 MiB
)

// ResourceRequirements bounds the memory/fuel/concurrency an agent instance
// may consume. Constructed only via NewResourceRequirements so the §6
// limits are enforced at construction, never re-checked ad hoc downstream.
type ResourceRequirements struct {
	MemoryLimit           uint64
	FuelLimit             uint64
	RequiresIsolation     bool
	MaxConcurrentRequests uint32
}

// NewResourceRequirements validates memoryLimit and fuelLimit against the
// §6 bounds before constructing the value.
func NewResourceRequirements(memoryLimit, fuelLimit uint64, requiresIsolation bool, maxConcurrentRequests uint32) (ResourceRequirements, error) {
	if memoryLimit < MinMemoryLimitBytes || memoryLimit > MaxMemoryLimitBytes {
		return ResourceRequirements{}, fmt.Errorf("memory limit %d out of range [%d, %d]", memoryLimit, MinMemoryLimitBytes, MaxMemoryLimitBytes)
	}
	if fuelLimit < MinFuelLimit || fuelLimit > MaxFuelLimit {
		return ResourceRequirements{}, fmt.Errorf("fuel limit %d out of range [%d, %d]", fuelLimit, MinFuelLimit, MaxFuelLimit)
	}
	return ResourceRequirements{
		MemoryLimit:           memoryLimit,
		FuelLimit:             fuelLimit,
		RequiresIsolation:     requiresIsolation,
		MaxConcurrentRequests: maxConcurrentRequests,
	}, nil
}

// Doubled returns a copy with MemoryLimit doubled, clamped to the maximum —
// used by the hot-reload engine for multi-version strategies per spec.md §5
// ("resource_requirements.memory_limit is doubled by the config helper").
func (r ResourceRequirements) Doubled() ResourceRequirements {
	doubled := r
	doubled.MemoryLimit = r.MemoryLimit * 2
	if doubled.MemoryLimit > MaxMemoryLimitBytes || doubled.MemoryLimit < r.MemoryLimit {
		doubled.MemoryLimit = MaxMemoryLimitBytes
	}
	return doubled
}

// TrafficSplitPercentage is a 0-100 traffic percentage, validated at
// construction.
type TrafficSplitPercentage uint8

// NewTrafficSplitPercentage validates pct is within [0, 100].
func NewTrafficSplitPercentage(pct int) (TrafficSplitPercentage, error) {
	if pct < 0 || pct > MaxTrafficSplit {
		return 0, fmt.Errorf("traffic split %d out of range [0, %d]", pct, MaxTrafficSplit)
	}
	return TrafficSplitPercentage(pct), nil
}

// DrainTimeout is a drain budget, validated to be at least 30 seconds per
// spec.md §6.
type DrainTimeout struct {
	Seconds uint32
}

// NewDrainTimeout validates seconds >= MinDrainTimeoutSecs.
func NewDrainTimeout(seconds uint32) (DrainTimeout, error) {
	if seconds < MinDrainTimeoutSecs {
		return DrainTimeout{}, fmt.Errorf("drain timeout %ds below minimum %ds", seconds, MinDrainTimeoutSecs)
	}
	return DrainTimeout{Seconds: seconds}, nil
}
