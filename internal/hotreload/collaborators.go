// Package hotreload implements the Hot-Reload Engine (spec.md §4.3):
// strategy-driven version transitions, rollback-trigger evaluation, and
// bounded version history, grounded on the teacher's approval queue
// (context-tracked pending operations with a notify channel and
// timeout-driven resolution).
package hotreload

import (
	"context"
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
)

// RuntimeManager drives multi-version WASM instantiation for the reload
// path (spec.md §6). Unlike deployment.InstanceManager, a single agent may
// have more than one live version during a reload strategy.
type RuntimeManager interface {
	DeployVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, wasmBytes []byte, resources domain.ResourceRequirements) error
	StopVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) error
	HealthCheckVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (healthy bool, err error)
	SampleMetrics(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ReloadMetrics, error)
	SampleResourceUsage(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ResourceUsageSnapshot, error)
	// PreserveState captures a version's in-flight state for carry-over into
	// its replacement (spec.md §4.3 Graceful pipeline step 2).
	PreserveState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) ([]byte, error)
	// RestoreState applies previously preserved state to a newly created
	// version (spec.md §4.3 Graceful pipeline step 6).
	RestoreState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, state []byte) error
}

// TrafficRouter controls how much live traffic reaches each version during
// a traffic-splitting reload (spec.md §4.3).
type TrafficRouter interface {
	SetSplit(ctx context.Context, agentID domain.AgentID, from, to domain.AgentVersion, toPercentage domain.TrafficSplitPercentage) error
	DrainTo(ctx context.Context, agentID domain.AgentID, from domain.AgentVersion, timeout domain.DrainTimeout) error
	CutoverFully(ctx context.Context, agentID domain.AgentID, to domain.AgentVersion) error
}

// Clock is the subset of timeutil.Provider the strategies need; kept local
// so this package doesn't need to import timeutil's test type directly in
// its public surface.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	ShouldSkipDelays() bool
}
