package wasmtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

// RuntimeManager adapts Host to hotreload.RuntimeManager, keyed by the
// real per-version identifier instead of deploy_adapter's single sentinel
// — the reload path legitimately runs two versions at once.
type RuntimeManager struct{ host *Host }

func NewRuntimeManager(host *Host) *RuntimeManager { return &RuntimeManager{host: host} }

func (m *RuntimeManager) DeployVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, wasmBytes []byte, resources domain.ResourceRequirements) error {
	_, err := m.host.instantiate(ctx, instanceKey{agent: agentID, version: version}, wasmBytes, resources)
	return err
}

func (m *RuntimeManager) StopVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) error {
	m.host.stop(instanceKey{agent: agentID, version: version})
	return nil
}

func (m *RuntimeManager) HealthCheckVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (bool, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: version})
	if !ok {
		return false, nil
	}
	return ins.healthy(), nil
}

func (m *RuntimeManager) SampleMetrics(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ReloadMetrics, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: version})
	if !ok {
		return domain.ReloadMetrics{}, fmt.Errorf("no instance for %s@%s", agentID, version)
	}
	healthRate := 100.0
	if !ins.healthy() {
		healthRate = 0.0
	}
	return domain.ReloadMetrics{
		MemoryPeak:             ins.memoryBytes,
		HealthCheckSuccessRate: healthRate,
	}, nil
}

func (m *RuntimeManager) SampleResourceUsage(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ResourceUsageSnapshot, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: version})
	if !ok {
		return domain.ResourceUsageSnapshot{}, fmt.Errorf("no instance for %s@%s", agentID, version)
	}
	return domain.ResourceUsageSnapshot{
		MemoryBytes: ins.memoryBytes,
		FuelUsed:    ins.fuelBudget - ins.fuelRemaining(),
	}, nil
}

func (m *RuntimeManager) PreserveState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) ([]byte, error) {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: version})
	if !ok {
		return nil, fmt.Errorf("no instance for %s@%s", agentID, version)
	}
	return ins.preserve()
}

func (m *RuntimeManager) RestoreState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, state []byte) error {
	ins, ok := m.host.get(instanceKey{agent: agentID, version: version})
	if !ok {
		return fmt.Errorf("no instance for %s@%s", agentID, version)
	}
	return ins.restore(state)
}

// TrafficRouter is a process-local traffic splitter: wasmtime has no
// network data plane, so "routing" here means tagging which version's
// guest calls the host layer should dispatch new requests to. The host
// adapter layer (outside this package) is expected to consult Percentage
// when deciding which instance handles the next inbound call.
type TrafficRouter struct {
	mu     sync.Mutex
	splits map[domain.AgentID]domain.TrafficSplitPercentage
	active map[domain.AgentID]domain.AgentVersion
}

func NewTrafficRouter() *TrafficRouter {
	return &TrafficRouter{
		splits: make(map[domain.AgentID]domain.TrafficSplitPercentage),
		active: make(map[domain.AgentID]domain.AgentVersion),
	}
}

func (r *TrafficRouter) SetSplit(ctx context.Context, agentID domain.AgentID, from, to domain.AgentVersion, toPercentage domain.TrafficSplitPercentage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splits[agentID] = toPercentage
	r.active[agentID] = to
	return nil
}

func (r *TrafficRouter) DrainTo(ctx context.Context, agentID domain.AgentID, from domain.AgentVersion, timeout domain.DrainTimeout) error {
	return nil
}

func (r *TrafficRouter) CutoverFully(ctx context.Context, agentID domain.AgentID, to domain.AgentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splits[agentID] = 100
	r.active[agentID] = to
	return nil
}

// Percentage returns the last-applied traffic-split percentage for an
// agent, consulted by the host request-dispatch layer.
func (r *TrafficRouter) Percentage(agentID domain.AgentID) domain.TrafficSplitPercentage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.splits[agentID]
}
