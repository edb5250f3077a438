package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

type versionKey struct {
	agent   domain.AgentID
	version domain.AgentVersion
}

// Runtime is an in-memory hotreload.RuntimeManager: tracks which
// (agent, version) pairs are currently deployed, with per-version
// scriptable failures and metrics for exercising rollback triggers.
type Runtime struct {
	mu sync.Mutex

	running map[versionKey]bool
	Calls   []string

	FailDeploy        map[versionKey]bool
	FailHealth        map[versionKey]bool
	FailPreserveState map[versionKey]bool
	FailRestoreState  map[versionKey]bool
	Metrics           map[versionKey]domain.ReloadMetrics
	State             map[versionKey][]byte
}

func NewRuntime() *Runtime {
	return &Runtime{running: make(map[versionKey]bool)}
}

// SetMetrics scripts what SampleMetrics returns for one version — used to
// drive a rollback trigger deterministically in tests.
func (r *Runtime) SetMetrics(agentID domain.AgentID, version domain.AgentVersion, m domain.ReloadMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Metrics == nil {
		r.Metrics = make(map[versionKey]domain.ReloadMetrics)
	}
	r.Metrics[versionKey{agentID, version}] = m
}

// SetFailDeploy scripts DeployVersion to fail for one (agent, version) pair.
func (r *Runtime) SetFailDeploy(agentID domain.AgentID, version domain.AgentVersion, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDeploy == nil {
		r.FailDeploy = make(map[versionKey]bool)
	}
	r.FailDeploy[versionKey{agentID, version}] = fail
}

// SetFailHealth scripts HealthCheckVersion to report unhealthy for one
// (agent, version) pair.
func (r *Runtime) SetFailHealth(agentID domain.AgentID, version domain.AgentVersion, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailHealth == nil {
		r.FailHealth = make(map[versionKey]bool)
	}
	r.FailHealth[versionKey{agentID, version}] = fail
}

// SetState seeds the state a subsequent PreserveState call returns for one
// (agent, version) pair — used to exercise the graceful pipeline's carry-
// over without a real WASM module.
func (r *Runtime) SetState(agentID domain.AgentID, version domain.AgentVersion, state []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State == nil {
		r.State = make(map[versionKey][]byte)
	}
	r.State[versionKey{agentID, version}] = state
}

// SetFailPreserveState scripts PreserveState to fail for one (agent, version) pair.
func (r *Runtime) SetFailPreserveState(agentID domain.AgentID, version domain.AgentVersion, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailPreserveState == nil {
		r.FailPreserveState = make(map[versionKey]bool)
	}
	r.FailPreserveState[versionKey{agentID, version}] = fail
}

// SetFailRestoreState scripts RestoreState to fail for one (agent, version) pair.
func (r *Runtime) SetFailRestoreState(agentID domain.AgentID, version domain.AgentVersion, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailRestoreState == nil {
		r.FailRestoreState = make(map[versionKey]bool)
	}
	r.FailRestoreState[versionKey{agentID, version}] = fail
}

func (r *Runtime) DeployVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, wasmBytes []byte, resources domain.ResourceRequirements) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := versionKey{agentID, version}
	r.Calls = append(r.Calls, "deploy:"+version.String())
	if r.FailDeploy[key] {
		return fmt.Errorf("fake: deploy version failed")
	}
	r.running[key] = true
	return nil
}

func (r *Runtime) StopVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "stop:"+version.String())
	delete(r.running, versionKey{agentID, version})
	return nil
}

func (r *Runtime) HealthCheckVersion(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := versionKey{agentID, version}
	r.Calls = append(r.Calls, "health:"+version.String())
	if r.FailHealth[key] {
		return false, nil
	}
	return r.running[key], nil
}

func (r *Runtime) SampleMetrics(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ReloadMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.Metrics[versionKey{agentID, version}]; ok {
		return m, nil
	}
	return domain.ReloadMetrics{HealthCheckSuccessRate: 100}, nil
}

func (r *Runtime) SampleResourceUsage(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) (domain.ResourceUsageSnapshot, error) {
	return domain.ResourceUsageSnapshot{}, nil
}

func (r *Runtime) PreserveState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := versionKey{agentID, version}
	r.Calls = append(r.Calls, "preserve:"+version.String())
	if r.FailPreserveState[key] {
		return nil, fmt.Errorf("fake: preserve state failed")
	}
	return r.State[key], nil
}

func (r *Runtime) RestoreState(ctx context.Context, agentID domain.AgentID, version domain.AgentVersion, state []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := versionKey{agentID, version}
	r.Calls = append(r.Calls, "restore:"+version.String())
	if r.FailRestoreState[key] {
		return fmt.Errorf("fake: restore state failed")
	}
	if r.State == nil {
		r.State = make(map[versionKey][]byte)
	}
	r.State[key] = state
	return nil
}

// IsRunning reports whether the fake considers (agent, version) deployed.
func (r *Runtime) IsRunning(agentID domain.AgentID, version domain.AgentVersion) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[versionKey{agentID, version}]
}
