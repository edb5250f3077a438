package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/caxtonio/agentcore/internal/deployment"
	"github.com/caxtonio/agentcore/internal/domain"
)

// Instances is an in-memory deployment.InstanceManager: one version per
// agent, no real WASM execution.
type Instances struct {
	mu sync.Mutex

	running map[domain.AgentID]bool
	Calls   []string

	FailDeploy map[domain.AgentID]bool
	FailHealth map[domain.AgentID]bool

	MemoryUsed   uint64
	FuelConsumed uint64
}

func NewInstances() *Instances {
	return &Instances{running: make(map[domain.AgentID]bool)}
}

func (i *Instances) DeployInstance(ctx context.Context, agentID domain.AgentID, wasmBytes []byte, resources domain.ResourceRequirements) (deployment.InstanceDeploymentResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "deploy:"+agentID.String())
	if i.FailDeploy[agentID] {
		return deployment.InstanceDeploymentResult{Success: false, Error: "fake: deploy failed"}, fmt.Errorf("fake: deploy failed for %s", agentID)
	}
	i.running[agentID] = true
	return deployment.InstanceDeploymentResult{
		Success:      true,
		InstanceID:   agentID.String(),
		MemoryUsed:   i.MemoryUsed,
		FuelConsumed: i.FuelConsumed,
	}, nil
}

func (i *Instances) HealthCheck(ctx context.Context, agentID domain.AgentID) (deployment.HealthCheckResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "health:"+agentID.String())
	if i.FailHealth[agentID] || !i.running[agentID] {
		return deployment.HealthCheckResult{Healthy: false, Error: "fake: unhealthy"}, nil
	}
	return deployment.HealthCheckResult{Healthy: true}, nil
}

func (i *Instances) StopInstance(ctx context.Context, agentID domain.AgentID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "stop:"+agentID.String())
	delete(i.running, agentID)
	return nil
}

func (i *Instances) GetInstanceMetrics(ctx context.Context, agentID domain.AgentID) (uint64, uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.MemoryUsed, i.FuelConsumed, nil
}

// IsRunning reports whether the fake currently considers agentID deployed
// — useful for test assertions.
func (i *Instances) IsRunning(agentID domain.AgentID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running[agentID]
}
