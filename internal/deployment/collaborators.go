package deployment

import (
	"context"
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
)

// ResourceAllocator admits and releases the memory/fuel budget a deployment
// needs (spec.md §6). Implementations must be safely callable from multiple
// goroutines.
type ResourceAllocator interface {
	AllocateResources(ctx context.Context, agentID domain.AgentID, req domain.ResourceRequirements) error
	DeallocateResources(ctx context.Context, agentID domain.AgentID) error
	CheckResourceAvailability(ctx context.Context, req domain.ResourceRequirements) (bool, error)
}

// InstanceDeploymentResult is InstanceManager.DeployInstance's outcome
// (spec.md §6).
type InstanceDeploymentResult struct {
	Success      bool
	InstanceID   string
	Duration     time.Duration
	Error        string
	MemoryUsed   uint64
	FuelConsumed uint64
}

// HealthCheckResult is InstanceManager.HealthCheck's outcome (spec.md §6).
type HealthCheckResult struct {
	Healthy      bool
	ResponseTime time.Duration
	Error        string
}

// InstanceManager drives the actual WASM instantiation on the deployment
// path (spec.md §6). Version-unaware — the deployment path only ever deals
// with one instance per agent.
type InstanceManager interface {
	DeployInstance(ctx context.Context, agentID domain.AgentID, wasmBytes []byte, resources domain.ResourceRequirements) (InstanceDeploymentResult, error)
	HealthCheck(ctx context.Context, agentID domain.AgentID) (HealthCheckResult, error)
	StopInstance(ctx context.Context, agentID domain.AgentID) error
	GetInstanceMetrics(ctx context.Context, agentID domain.AgentID) (memory uint64, fuel uint64, err error)
}
