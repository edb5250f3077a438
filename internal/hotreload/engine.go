package hotreload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/hotreload/snapshots"
)

// Config configures the engine's bounded concurrency and default
// preservation depth.
type Config struct {
	// MaxConcurrentReloads bounds simultaneous reloads. 0 means unbounded.
	MaxConcurrentReloads int64
	// PreserveVersions is the snapshot store's per-agent ring capacity,
	// fixed for the engine's lifetime (<= 0 means
	// domain.DefaultPreservePreviousVersions). A request's
	// RollbackCapability.PreservePreviousVersions is not consulted.
	PreserveVersions int
	Registerer       prometheus.Registerer
}

// activeReload tracks one in-flight reload, grounded on the teacher's
// approval.InMemoryQueue pending-request bookkeeping: a cancel func plus a
// status the orchestrator can poll, with an external-rollback signal
// channel a running strategy checks between steps.
type activeReload struct {
	status       domain.HotReloadStatus
	cancel       context.CancelFunc
	rollbackReq  chan struct{}
	rollbackOnce sync.Once
}

// Engine is the Hot-Reload Engine (spec.md §4.3).
type Engine struct {
	runtime RuntimeManager
	router  TrafficRouter
	clock   Clock
	store   *snapshots.Store

	sem     *semaphore.Weighted
	metrics *metricsSet

	mu     sync.Mutex
	active map[domain.ReloadID]*activeReload
}

// NewEngine constructs a Hot-Reload Engine over the given collaborators.
func NewEngine(runtime RuntimeManager, router TrafficRouter, clock Clock, cfg Config) (*Engine, error) {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentReloads > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentReloads)
	}
	preserve := cfg.PreserveVersions
	if preserve <= 0 {
		preserve = domain.DefaultPreservePreviousVersions
	}
	metrics, err := newMetricsSet(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register hot-reload metrics: %w", err)
	}
	return &Engine{
		runtime: runtime,
		router:  router,
		clock:   clock,
		store:   snapshots.NewStore(preserve),
		sem:     sem,
		metrics: metrics,
		active:  make(map[domain.ReloadID]*activeReload),
	}, nil
}

// strategyCtx bundles everything one strategy run needs.
type strategyCtx struct {
	ctx     context.Context
	engine  *Engine
	req     domain.HotReloadRequest
	active  *activeReload
	started time.Time
}

// Reload runs the configured strategy for req (spec.md §4.3). Any step
// failure, or a fired rollback trigger, restores the prior version before
// returning a HotReloadError — AutomaticRollback is distinguished from a
// generic failure via domain.IsAutomaticRollback.
func (e *Engine) Reload(ctx context.Context, req domain.HotReloadRequest) (domain.HotReloadResult, error) {
	startedAt := e.clock.Now()

	if len(req.WasmBytes) == 0 {
		return e.fail(req, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadValidationFailed, Detail: "empty wasm module",
		})
	}

	timeout := req.Config.RollbackCapability.RollbackTimeout
	if timeout <= 0 {
		timeout = domain.DefaultRollbackTimeout
	}
	reloadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.sem != nil {
		if err := e.sem.Acquire(reloadCtx, 1); err != nil {
			return e.fail(req, startedAt, domain.TimeoutExceededReload(timeout))
		}
		defer e.sem.Release(1)
	}

	ar := &activeReload{status: domain.ReloadPreparing, cancel: cancel, rollbackReq: make(chan struct{})}
	if !e.register(req.ReloadID, ar) {
		return e.fail(req, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadAlreadyInProgress, Detail: req.ReloadID.String(),
		})
	}
	defer e.deregister(req.ReloadID)

	sctx := &strategyCtx{ctx: reloadCtx, engine: e, req: req, active: ar, started: startedAt}

	var (
		metrics domain.ReloadMetrics
		err     error
	)
	switch req.Config.Strategy {
	case domain.HotReloadImmediate:
		metrics, err = runImmediate(sctx)
	case domain.HotReloadParallel:
		metrics, err = runParallel(sctx)
	case domain.HotReloadTrafficSplitting:
		metrics, err = runTrafficSplitting(sctx)
	case domain.HotReloadGraceful:
		fallthrough
	default:
		metrics, err = runGraceful(sctx)
	}

	if err != nil {
		if reloadCtx.Err() != nil && !domain.IsAutomaticRollback(err) {
			err = domain.TimeoutExceededReload(timeout)
		}
		return e.failWithMetrics(req, startedAt, metrics, err)
	}

	e.store.Preserve(req.AgentID, domain.VersionSnapshot{
		Version:       req.FromVersion,
		VersionNumber: fromVersionNumber(req),
		WasmBytes:     req.FromVersionWasmBytes,
		CreatedAt:     e.clock.Now(),
		ResourceUsage: domain.ResourceUsageSnapshot{MemoryBytes: metrics.MemoryPeak, FuelUsed: 0, Requests: metrics.RequestsProcessed},
		Resources:     req.Config.ResourceRequirements,
	})

	e.metrics.observe(domain.ReloadCompleted, e.clock.Now().Sub(startedAt).Seconds())
	return domain.HotReloadResult{
		ReloadID:          req.ReloadID,
		AgentID:           req.AgentID,
		Status:            domain.ReloadCompleted,
		StartedAt:         startedAt,
		CompletedAt:       e.clock.Now(),
		Metrics:           metrics,
		PreservedVersions: e.store.All(req.AgentID),
	}, nil
}

// fromVersionNumber resolves the snapshot's VersionNumber to the
// from-version's number — spec.md §9's resolved open question: the
// snapshot records what is being retired, not the version it's being
// retired in favor of.
func fromVersionNumber(req domain.HotReloadRequest) domain.VersionNumber {
	if req.ToVersionNumber == 0 {
		return 0
	}
	return req.ToVersionNumber - 1
}

// RollbackToVersion performs an external rollback to a previously preserved
// version (spec.md §4.3 "rollback_hot_reload(reload_id, target_version)"):
// locate the matching VersionSnapshot, stop the currently running version,
// recreate the target from its stored bytes, switch traffic fully to it.
// Unlike RollbackReload (which only cancels an in-flight reload), this runs
// against a completed reload's history.
func (e *Engine) RollbackToVersion(ctx context.Context, agentID domain.AgentID, currentVersion domain.AgentVersion, target domain.VersionNumber) (domain.HotReloadResult, error) {
	startedAt := e.clock.Now()

	snap, ok := e.store.Lookup(agentID, target)
	if !ok {
		return e.fail(domain.HotReloadRequest{AgentID: agentID}, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadVersionNotFound, Detail: fmt.Sprintf("no preserved snapshot for version %d", target),
		})
	}
	if len(snap.WasmBytes) == 0 {
		return e.fail(domain.HotReloadRequest{AgentID: agentID}, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "preserved snapshot has no module bytes to recreate from",
		})
	}

	if err := e.runtime.StopVersion(ctx, agentID, currentVersion); err != nil {
		return e.fail(domain.HotReloadRequest{AgentID: agentID}, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "stop current version failed", OldInstanceGone: false, Wrapped: err,
		})
	}

	if err := e.runtime.DeployVersion(ctx, agentID, snap.Version, snap.WasmBytes, snap.Resources); err != nil {
		return e.fail(domain.HotReloadRequest{AgentID: agentID}, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "recreate target version failed", OldInstanceGone: true, Wrapped: err,
		})
	}

	if err := e.router.CutoverFully(ctx, agentID, snap.Version); err != nil {
		return e.fail(domain.HotReloadRequest{AgentID: agentID}, startedAt, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "switch traffic to target version failed", OldInstanceGone: true, Wrapped: err,
		})
	}

	reason := fmt.Sprintf("external rollback to version %d", target)
	e.metrics.recordRollback(reason)
	e.metrics.observe(domain.ReloadRolledBack, e.clock.Now().Sub(startedAt).Seconds())
	return domain.HotReloadResult{
		AgentID:           agentID,
		Status:            domain.ReloadRolledBack,
		StartedAt:         startedAt,
		CompletedAt:       e.clock.Now(),
		RollbackReason:    &reason,
		PreservedVersions: e.store.All(agentID),
	}, nil
}

// CancelReload cancels an in-flight reload. Idempotent.
func (e *Engine) CancelReload(id domain.ReloadID) error {
	e.mu.Lock()
	ar, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	ar.cancel()
	return nil
}

// RollbackReload requests an external rollback of an in-flight reload.
// Idempotent: repeated calls, or a call after the reload has already
// finished, are no-ops.
func (e *Engine) RollbackReload(id domain.ReloadID) error {
	e.mu.Lock()
	ar, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	ar.rollbackOnce.Do(func() { close(ar.rollbackReq) })
	return nil
}

// GetReloadStatus returns the tracked in-flight status, or Completed if the
// reload is no longer tracked.
func (e *Engine) GetReloadStatus(id domain.ReloadID) domain.HotReloadStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ar, ok := e.active[id]; ok {
		return ar.status
	}
	return domain.ReloadCompleted
}

// PreservedVersions exposes the bounded snapshot history for an agent.
func (e *Engine) PreservedVersions(agentID domain.AgentID) []domain.VersionSnapshot {
	return e.store.All(agentID)
}

// DropAgent discards preserved history for a removed agent.
func (e *Engine) DropAgent(agentID domain.AgentID) {
	e.store.Drop(agentID)
}

func (e *Engine) register(id domain.ReloadID, ar *activeReload) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[id]; exists {
		return false
	}
	e.active[id] = ar
	return true
}

func (e *Engine) deregister(id domain.ReloadID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

func (e *Engine) setStatus(id domain.ReloadID, status domain.HotReloadStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ar, ok := e.active[id]; ok {
		ar.status = status
	}
}

func (e *Engine) fail(req domain.HotReloadRequest, startedAt time.Time, err error) (domain.HotReloadResult, error) {
	return e.failWithMetrics(req, startedAt, domain.ReloadMetrics{}, err)
}

func (e *Engine) failWithMetrics(req domain.HotReloadRequest, startedAt time.Time, metrics domain.ReloadMetrics, err error) (domain.HotReloadResult, error) {
	msg := err.Error()
	status := domain.ReloadFailed
	var reason *string
	if hre, ok := err.(*domain.HotReloadError); ok && hre.Kind == domain.ReloadAutomaticRollback {
		status = domain.ReloadRolledBack
		r := hre.Reason
		reason = &r
		e.metrics.recordRollback(r)
	}
	e.metrics.observe(status, e.clock.Now().Sub(startedAt).Seconds())
	return domain.HotReloadResult{
		ReloadID:       req.ReloadID,
		AgentID:        req.AgentID,
		Status:         status,
		StartedAt:      startedAt,
		CompletedAt:    e.clock.Now(),
		ErrorMessage:   &msg,
		RollbackReason: reason,
		Metrics:        metrics,
	}, err
}
