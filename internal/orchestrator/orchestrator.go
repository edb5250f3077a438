// Package orchestrator implements the Lifecycle Orchestrator (spec.md
// §4.1): the facade over the Module Validator, Deployment Engine, and
// Hot-Reload Engine, owning the authoritative per-agent state machine and
// enforcing every transition against domain.CanTransition. Grounded on
// the teacher's internal/policy.Engine (RWMutex-guarded map, a Reload
// operation, a notify mechanism) generalized from "OPA policy evaluators"
// to "running agents".
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caxtonio/agentcore/internal/deployment"
	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/hotreload"
	"github.com/caxtonio/agentcore/internal/timeutil"
	"github.com/caxtonio/agentcore/internal/validator"
)

// Config configures operation timeouts. Zero values fall back to the
// spec.md §6 defaults.
type Config struct {
	DeployTimeout time.Duration
	ReloadTimeout time.Duration
	StopTimeout   time.Duration
}

const (
	defaultDeployTimeout = 30 * time.Second
	defaultReloadTimeout = 60 * time.Second
	defaultStopTimeout   = 30 * time.Second
)

// Orchestrator is the Lifecycle Orchestrator.
type Orchestrator struct {
	cfg Config

	validator *validator.Validator
	deployer  *deployment.Engine
	reloader  *hotreload.Engine
	clock     timeutil.Provider

	mu        sync.RWMutex
	agents    map[domain.AgentID]*domain.AgentLifecycle
	statuses  map[domain.AgentID]*domain.AgentStatus
	wasmBytes map[domain.AgentID][]byte

	stats  *Stats
	events chan Event
}

// New constructs a Lifecycle Orchestrator over its three collaborating
// engines.
func New(v *validator.Validator, deployer *deployment.Engine, reloader *hotreload.Engine, clock timeutil.Provider, cfg Config) *Orchestrator {
	if cfg.DeployTimeout <= 0 {
		cfg.DeployTimeout = defaultDeployTimeout
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = defaultReloadTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Orchestrator{
		cfg:       cfg,
		validator: v,
		deployer:  deployer,
		reloader:  reloader,
		clock:     clock,
		agents:    make(map[domain.AgentID]*domain.AgentLifecycle),
		statuses:  make(map[domain.AgentID]*domain.AgentStatus),
		wasmBytes: make(map[domain.AgentID][]byte),
		stats:     newStats(),
		events:    make(chan Event, eventsBufferSize),
	}
}

// Events returns the orchestrator's lifecycle event stream. Never closed
// during normal operation.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Stats returns the current lifecycle statistics.
func (o *Orchestrator) Stats() Stats { return o.stats.Snapshot() }

func (o *Orchestrator) publish(ev Event) {
	ev.At = o.clock.Now()
	select {
	case o.events <- ev:
	default:
		// A full buffer means a slow or absent consumer; dropping here
		// keeps a stalled event reader from ever blocking a lifecycle
		// operation.
	}
}

// DeployAgentRequest is DeployAgent's input.
type DeployAgentRequest struct {
	Name       domain.AgentName
	WasmBytes  []byte
	PolicyName string
	Config     domain.DeploymentConfig
}

// DeployAgent validates the module, transitions the new agent through
// Unloaded -> Loaded -> Ready, and runs the Deployment Engine in between
// (spec.md §4.1, §4.2). The agent is left Ready; StartAgent is the separate
// call that promotes it to Running.
func (o *Orchestrator) DeployAgent(ctx context.Context, req DeployAgentRequest) (domain.AgentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DeployTimeout)
	defer cancel()

	now := o.clock.Now()
	agentID := domain.NewAgentID()
	version := domain.NewAgentVersion()
	name := req.Name
	lifecycle := domain.NewAgentLifecycle(agentID, &name, now)

	o.mu.Lock()
	o.agents[agentID] = lifecycle
	o.statuses[agentID] = &domain.AgentStatus{Lifecycle: lifecycle.Snapshot(), Health: domain.Health{Status: domain.HealthUnknown}}
	o.mu.Unlock()
	o.stats.agentAdded()

	mod, err := o.validator.ValidateModule(ctx, req.WasmBytes, req.PolicyName)
	if err != nil {
		o.fail(agentID, err.Error(), now)
		return o.statusLocked(agentID), &domain.LifecycleError{Kind: domain.LifecycleValidationFailed, Detail: "module validation failed", Wrapped: err}
	}
	if !mod.Validation.IsValid() {
		detail := fmt.Sprintf("module rejected: %d failure(s)", len(mod.Validation.Failures))
		o.fail(agentID, detail, now)
		return o.statusLocked(agentID), &domain.LifecycleError{Kind: domain.LifecycleValidationFailed, Detail: detail}
	}

	if err := o.transition(agentID, domain.StateLoaded); err != nil {
		o.fail(agentID, err.Error(), now)
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}

	deployReq := domain.DeploymentRequest{
		DeploymentID:  domain.NewDeploymentID(),
		AgentID:       agentID,
		Version:       version,
		VersionNumber: 1,
		Config:        req.Config,
		WasmBytes:     req.WasmBytes,
	}
	result, err := o.deployer.Deploy(ctx, deployReq)
	o.stats.deployment(err == nil)
	o.publish(Event{Kind: EventDeploymentResult, AgentID: agentID, Deployment: &result})
	if err != nil {
		o.fail(agentID, result.ErrorMessageOrDefault(), o.clock.Now())
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}
	if err := o.transition(agentID, domain.StateReady); err != nil {
		o.fail(agentID, err.Error(), o.clock.Now())
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}

	o.mu.Lock()
	lifecycle.Version = version
	lifecycle.VersionNumber = 1
	status := o.statuses[agentID]
	status.Lifecycle = lifecycle.Snapshot()
	status.LastDeploymentID = &deployReq.DeploymentID
	status.MemoryAllocated = result.Metrics.MemoryPeak
	status.LastActivityAt = o.clock.Now()
	status.Health = domain.Health{Status: domain.HealthHealthy}
	o.wasmBytes[agentID] = req.WasmBytes
	snapshot := *status
	o.mu.Unlock()

	return snapshot, nil
}

// StartAgent promotes a deployed agent from Ready to Running (spec.md
// §4.1's separate start_agent operation).
func (o *Orchestrator) StartAgent(ctx context.Context, agentID domain.AgentID) (domain.AgentStatus, error) {
	if err := o.transition(agentID, domain.StateRunning); err != nil {
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}
	o.stats.enteredRunning()

	o.mu.Lock()
	if status, ok := o.statuses[agentID]; ok {
		status.LastActivityAt = o.clock.Now()
	}
	o.mu.Unlock()

	return o.statusLocked(agentID), nil
}

// HotReloadAgentRequest is HotReloadAgent's input.
type HotReloadAgentRequest struct {
	AgentID   domain.AgentID
	WasmBytes []byte
	Config    domain.HotReloadConfig
}

// HotReloadAgent runs the Hot-Reload Engine for an already-Running agent,
// confirming Running->Running on success (spec.md §4.1, §4.3). A failed
// reload that reports OldInstanceGone marks the agent Failed; otherwise
// the agent is left Running on its prior version, per spec.md §9's
// resolved open question.
func (o *Orchestrator) HotReloadAgent(ctx context.Context, req HotReloadAgentRequest) (domain.AgentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ReloadTimeout)
	defer cancel()

	o.mu.RLock()
	lifecycle, ok := o.agents[req.AgentID]
	o.mu.RUnlock()
	if !ok {
		return domain.AgentStatus{}, &domain.LifecycleError{Kind: domain.LifecycleAgentNotFound, Detail: req.AgentID.String()}
	}
	if lifecycle.CurrentState != domain.StateRunning {
		return domain.AgentStatus{}, &domain.LifecycleError{
			Kind: domain.LifecycleInvalidStateTransition, Detail: fmt.Sprintf("agent is %s, not running", lifecycle.CurrentState),
		}
	}

	toVersion := domain.NewAgentVersion()
	if toVersion == lifecycle.Version {
		return domain.AgentStatus{}, &domain.LifecycleError{
			Kind: domain.LifecycleValidationFailed, Detail: "from_version and to_version must differ",
		}
	}
	if req.Config.Strategy.RequiresIsolation() && !req.Config.ResourceRequirements.RequiresIsolation {
		return domain.AgentStatus{}, &domain.LifecycleError{
			Kind: domain.LifecycleValidationFailed,
			Detail: fmt.Sprintf("strategy %s runs old and new versions concurrently and requires ResourceRequirements.RequiresIsolation", req.Config.Strategy),
		}
	}
	o.mu.RLock()
	fromWasmBytes := o.wasmBytes[req.AgentID]
	o.mu.RUnlock()

	reloadReq := domain.HotReloadRequest{
		ReloadID:             domain.NewReloadID(),
		AgentID:              req.AgentID,
		FromVersion:          lifecycle.Version,
		ToVersion:            toVersion,
		ToVersionNumber:      lifecycle.VersionNumber + 1,
		Config:               req.Config,
		WasmBytes:            req.WasmBytes,
		FromVersionWasmBytes: fromWasmBytes,
	}

	result, err := o.reloader.Reload(ctx, reloadReq)
	rolledBack := domain.IsAutomaticRollback(err)
	o.stats.reload(err == nil, rolledBack)
	o.publish(Event{Kind: EventReloadResult, AgentID: req.AgentID, Reload: &result})

	if err != nil {
		oldGone := false
		if hre, ok := err.(*domain.HotReloadError); ok {
			oldGone = hre.OldInstanceGone
		}
		if oldGone {
			o.fail(req.AgentID, result.ErrorMessageOrDefault(), o.clock.Now())
		}
		return o.statusLocked(req.AgentID), domain.WrapHotReloadError(err)
	}

	if err := o.transition(req.AgentID, domain.StateRunning); err != nil {
		o.fail(req.AgentID, err.Error(), o.clock.Now())
		return o.statusLocked(req.AgentID), domain.WrapHotReloadError(err)
	}

	o.mu.Lock()
	lifecycle.Version = toVersion
	lifecycle.VersionNumber = reloadReq.ToVersionNumber
	status := o.statuses[req.AgentID]
	status.Lifecycle = lifecycle.Snapshot()
	status.LastReloadID = &reloadReq.ReloadID
	status.LastActivityAt = o.clock.Now()
	o.wasmBytes[req.AgentID] = req.WasmBytes
	snapshot := *status
	o.mu.Unlock()

	return snapshot, nil
}

// StopAgent drains and stops a Running agent (spec.md §4.1 Running ->
// Draining -> Stopped). drainTimeout is the grace period outstanding work
// gets before the instance is forced down; zero skips the wait entirely.
func (o *Orchestrator) StopAgent(ctx context.Context, agentID domain.AgentID, drainTimeout time.Duration) (domain.AgentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StopTimeout)
	defer cancel()

	if err := o.transition(agentID, domain.StateDraining); err != nil {
		return domain.AgentStatus{}, domain.WrapDeploymentError(err)
	}
	o.stats.leftRunning()

	if drainTimeout > 0 {
		// Honor the drain budget, then force the stop regardless of whether
		// the wait completed or the context ran out.
		_ = o.clock.Sleep(ctx, drainTimeout)
	}

	if err := o.deployer.RollbackDeployment(ctx, agentID); err != nil {
		o.fail(agentID, err.Error(), o.clock.Now())
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}

	if err := o.transition(agentID, domain.StateStopped); err != nil {
		return o.statusLocked(agentID), domain.WrapDeploymentError(err)
	}
	return o.statusLocked(agentID), nil
}

// RollbackHotReload performs an external rollback of an already-completed
// reload, recreating a previously preserved version and switching traffic
// back to it (spec.md §4.3 "rollback_hot_reload(reload_id, target_version)").
// Unlike CancelReload, this acts on history rather than an in-flight
// reload, so it can be called at any point after a hot reload has finished.
func (o *Orchestrator) RollbackHotReload(ctx context.Context, agentID domain.AgentID, targetVersion domain.VersionNumber) (domain.AgentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ReloadTimeout)
	defer cancel()

	o.mu.RLock()
	lifecycle, ok := o.agents[agentID]
	o.mu.RUnlock()
	if !ok {
		return domain.AgentStatus{}, &domain.LifecycleError{Kind: domain.LifecycleAgentNotFound, Detail: agentID.String()}
	}

	result, err := o.reloader.RollbackToVersion(ctx, agentID, lifecycle.Version, targetVersion)
	o.stats.reload(err == nil, false)
	o.publish(Event{Kind: EventReloadResult, AgentID: agentID, Reload: &result})
	if err != nil {
		o.fail(agentID, result.ErrorMessageOrDefault(), o.clock.Now())
		return o.statusLocked(agentID), domain.WrapHotReloadError(err)
	}

	snap, found := o.reloader.PreservedVersions(agentID), false
	for _, s := range snap {
		if s.VersionNumber == targetVersion {
			found = true
			o.mu.Lock()
			lifecycle.Version = s.Version
			lifecycle.VersionNumber = s.VersionNumber
			o.wasmBytes[agentID] = s.WasmBytes
			status := o.statuses[agentID]
			status.Lifecycle = lifecycle.Snapshot()
			status.LastActivityAt = o.clock.Now()
			o.mu.Unlock()
			break
		}
	}
	if !found {
		o.fail(agentID, "rollback target version vanished from history after rollback", o.clock.Now())
	}
	return o.statusLocked(agentID), nil
}

// RemoveAgent stops (if necessary) and forgets an agent entirely,
// releasing its snapshot history (spec.md §4.5).
func (o *Orchestrator) RemoveAgent(ctx context.Context, agentID domain.AgentID) error {
	o.mu.RLock()
	lifecycle, ok := o.agents[agentID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	if lifecycle.CurrentState == domain.StateRunning {
		if _, err := o.StopAgent(ctx, agentID, 0); err != nil {
			return err
		}
	}

	if err := o.deployer.CleanupAgent(ctx, agentID); err != nil {
		return fmt.Errorf("cleanup agent: %w", err)
	}
	o.reloader.DropAgent(agentID)

	o.mu.Lock()
	wasFailed := lifecycle.CurrentState == domain.StateFailed
	delete(o.agents, agentID)
	delete(o.statuses, agentID)
	delete(o.wasmBytes, agentID)
	o.mu.Unlock()
	o.stats.agentRemoved(false, wasFailed)
	return nil
}

// GetAgentStatus returns the derived status view for one agent.
func (o *Orchestrator) GetAgentStatus(agentID domain.AgentID) (domain.AgentStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	status, ok := o.statuses[agentID]
	if !ok {
		return domain.AgentStatus{}, &domain.LifecycleError{Kind: domain.LifecycleAgentNotFound, Detail: agentID.String()}
	}
	return *status, nil
}

// GetAgentLifecycle returns the raw lifecycle record for one agent.
func (o *Orchestrator) GetAgentLifecycle(agentID domain.AgentID) (domain.AgentLifecycle, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	lifecycle, ok := o.agents[agentID]
	if !ok {
		return domain.AgentLifecycle{}, &domain.LifecycleError{Kind: domain.LifecycleAgentNotFound, Detail: agentID.String()}
	}
	return lifecycle.Snapshot(), nil
}

// ListAgents returns every tracked agent's status.
func (o *Orchestrator) ListAgents() []domain.AgentStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]domain.AgentStatus, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, *s)
	}
	return out
}

// transition moves an agent's lifecycle and publishes the resulting
// StateTransition event. Holds the write lock only for the duration of
// the state mutation itself, never across a suspension point or engine
// call.
func (o *Orchestrator) transition(agentID domain.AgentID, to domain.AgentState) error {
	now := o.clock.Now()
	o.mu.Lock()
	lifecycle, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return &domain.LifecycleError{Kind: domain.LifecycleAgentNotFound, Detail: agentID.String()}
	}
	from := lifecycle.CurrentState
	err := lifecycle.Transition(to, now)
	if err == nil {
		if status, ok := o.statuses[agentID]; ok {
			status.Lifecycle = lifecycle.Snapshot()
		}
	}
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.publish(Event{Kind: EventStateTransition, AgentID: agentID, Transition: &domain.StateTransition{From: from, To: to, At: now.UnixNano()}})
	return nil
}

func (o *Orchestrator) fail(agentID domain.AgentID, reason string, now time.Time) {
	o.mu.Lock()
	lifecycle, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	from := lifecycle.CurrentState
	lifecycle.SetFailed(reason, now)
	if status, ok := o.statuses[agentID]; ok {
		status.Lifecycle = lifecycle.Snapshot()
		status.Health = domain.Health{Status: domain.HealthUnhealthy, Reason: reason}
	}
	o.mu.Unlock()
	o.stats.enteredFailed()
	o.publish(Event{Kind: EventStateTransition, AgentID: agentID, Transition: &domain.StateTransition{From: from, To: domain.StateFailed, At: now.UnixNano()}})
}

func (o *Orchestrator) statusLocked(agentID domain.AgentID) domain.AgentStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if status, ok := o.statuses[agentID]; ok {
		return *status
	}
	return domain.AgentStatus{}
}
