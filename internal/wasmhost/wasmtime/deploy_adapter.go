package wasmtime

import (
	"context"
	"fmt"

	"github.com/caxtonio/agentcore/internal/deployment"
	"github.com/caxtonio/agentcore/internal/domain"
)

// singleVersion is a fixed sentinel version used to key the single
// instance a deployment.InstanceManager is allowed to hold per agent —
// the deployment path is version-unaware (spec.md §6).
var singleVersion domain.AgentVersion

// InstanceManager adapts Host to deployment.InstanceManager.
type InstanceManager struct{ host *Host }

// NewInstanceManager wraps host for the Deployment Engine.
func NewInstanceManager(host *Host) *InstanceManager { return &InstanceManager{host: host} }

func (m *InstanceManager) DeployInstance(ctx context.Context, agentID domain.AgentID, wasmBytes []byte, resources domain.ResourceRequirements) (deployment.InstanceDeploymentResult, error) {
	key := instanceKey{agent: agentID, version: singleVersion}
	ins, err := m.host.instantiate(ctx, key, wasmBytes, resources)
	if err != nil {
		return deployment.InstanceDeploymentResult{Success: false, Error: err.Error()}, err
	}
	return deployment.InstanceDeploymentResult{
		Success:      true,
		InstanceID:   agentID.String(),
		MemoryUsed:   ins.memoryBytes,
		FuelConsumed: resources.FuelLimit - ins.fuelRemaining(),
	}, nil
}

func (m *InstanceManager) HealthCheck(ctx context.Context, agentID domain.AgentID) (deployment.HealthCheckResult, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: singleVersion})
	if !ok {
		return deployment.HealthCheckResult{Healthy: false, Error: "no instance"}, nil
	}
	if !ins.healthy() {
		return deployment.HealthCheckResult{Healthy: false, Error: "instance unhealthy or out of fuel"}, nil
	}
	return deployment.HealthCheckResult{Healthy: true}, nil
}

func (m *InstanceManager) StopInstance(ctx context.Context, agentID domain.AgentID) error {
	m.host.stop(instanceKey{agent: agentID, version: singleVersion})
	return nil
}

func (m *InstanceManager) GetInstanceMetrics(ctx context.Context, agentID domain.AgentID) (uint64, uint64, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: singleVersion})
	if !ok {
		return 0, 0, fmt.Errorf("no instance for %s", agentID)
	}
	return ins.memoryBytes, ins.fuelBudget - ins.fuelRemaining(), nil
}
