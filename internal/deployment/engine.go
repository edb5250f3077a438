// Package deployment implements the Deployment Engine (spec.md §4.2):
// resource admission, single-instance instantiation, health gating, and
// metrics. Every strategy tag is currently treated as "immediate
// single-instance" — see domain.DeploymentStrategy.
package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/caxtonio/agentcore/internal/domain"
)

// Engine is the Deployment Engine. Holds no long-lived per-agent state
// beyond in-flight deployment contexts keyed by DeploymentID (spec.md §3).
type Engine struct {
	allocator ResourceAllocator
	instances InstanceManager

	sem     *semaphore.Weighted
	metrics *metricsSet

	mu       sync.Mutex
	inFlight map[domain.DeploymentID]*inFlightDeployment
}

type inFlightDeployment struct {
	status domain.DeploymentStatus
	cancel context.CancelFunc
}

// Config configures the engine's bounded concurrency.
type Config struct {
	// MaxConcurrent bounds simultaneous deployments. 0 means unbounded.
	MaxConcurrent int64
	Registerer    prometheus.Registerer
}

// NewEngine constructs a Deployment Engine over the given collaborators.
func NewEngine(allocator ResourceAllocator, instances InstanceManager, cfg Config) (*Engine, error) {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	metrics, err := newMetricsSet(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register deployment metrics: %w", err)
	}
	return &Engine{
		allocator: allocator,
		instances: instances,
		sem:       sem,
		metrics:   metrics,
		inFlight:  make(map[domain.DeploymentID]*inFlightDeployment),
	}, nil
}

// Deploy runs the deployment sequence from spec.md §4.2. On any step
// failure, previously-allocated resources are released before returning.
func (e *Engine) Deploy(ctx context.Context, req domain.DeploymentRequest) (domain.DeploymentResult, error) {
	startedAt := time.Now()

	if len(req.WasmBytes) == 0 {
		return e.fail(req, startedAt, &domain.DeploymentError{
			Kind: domain.DeployWasmValidationFailed, Detail: "empty wasm module",
		})
	}

	deadline := req.Config.Timeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	deployCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if e.sem != nil {
		if err := e.sem.Acquire(deployCtx, 1); err != nil {
			return e.fail(req, startedAt, domain.TimeoutExceededDeployment(deadline))
		}
		defer e.sem.Release(1)
	}

	e.register(req.DeploymentID, cancel)
	defer e.deregister(req.DeploymentID)

	if err := e.allocator.AllocateResources(deployCtx, req.AgentID, req.Config.ResourceRequirements); err != nil {
		return e.fail(req, startedAt, &domain.DeploymentError{
			Kind: domain.DeployInsufficientResources, Detail: "resource allocation failed", Wrapped: err,
		})
	}

	instanceResult, err := e.instances.DeployInstance(deployCtx, req.AgentID, req.WasmBytes, req.Config.ResourceRequirements)
	if err != nil {
		e.deallocate(ctx, req.AgentID)
		if deployCtx.Err() != nil {
			return e.fail(req, startedAt, domain.TimeoutExceededDeployment(deadline))
		}
		return e.fail(req, startedAt, &domain.DeploymentError{
			Kind: domain.DeployInstanceStartupFailed, Detail: "instance deployment failed", Wrapped: err,
		})
	}
	if !instanceResult.Success {
		e.deallocate(ctx, req.AgentID)
		return e.failWithMetrics(req, startedAt, instancesFailedMetrics(), &domain.DeploymentError{
			Kind: domain.DeployWasmValidationFailed, Detail: instanceResult.Error,
		})
	}

	health, err := e.instances.HealthCheck(deployCtx, req.AgentID)
	if err != nil || !health.Healthy {
		e.deallocate(ctx, req.AgentID)
		detail := "first health check failed"
		if err != nil {
			detail = err.Error()
		} else if health.Error != "" {
			detail = health.Error
		}
		return e.failWithMetrics(req, startedAt, partialMetrics(instanceResult), &domain.DeploymentError{
			Kind: domain.DeployInstanceStartupFailed, Detail: detail,
		})
	}

	memory, fuel, err := e.instances.GetInstanceMetrics(deployCtx, req.AgentID)
	if err != nil {
		memory, fuel = instanceResult.MemoryUsed, instanceResult.FuelConsumed
	}

	metrics := domain.DeploymentMetrics{
		InstancesDeployed:      1,
		InstancesFailed:        0,
		MemoryPeak:             memory,
		FuelConsumed:           fuel,
		HealthCheckSuccessRate: 100.0,
		TotalDuration:          time.Since(startedAt),
	}

	e.metrics.observe(domain.DeploymentCompleted, metrics.TotalDuration.Seconds())
	return domain.DeploymentResult{
		DeploymentID: req.DeploymentID,
		AgentID:      req.AgentID,
		Status:       domain.DeploymentCompleted,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
		Metrics:      metrics,
	}, nil
}

// GetDeploymentStatus returns the tracked in-flight status, or Completed if
// the deployment is no longer tracked (it already finished either way).
func (e *Engine) GetDeploymentStatus(id domain.DeploymentID) domain.DeploymentStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.inFlight[id]; ok {
		return d.status
	}
	return domain.DeploymentCompleted
}

// CancelDeployment cancels an in-flight deployment. Idempotent: a double
// call (or a call after the deployment already finished) is a no-op
// success.
func (e *Engine) CancelDeployment(id domain.DeploymentID) error {
	e.mu.Lock()
	d, ok := e.inFlight[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	d.cancel()
	return nil
}

// RollbackDeployment stops the instance and releases its resources.
// Idempotent: safe to call on an agent with no instance.
func (e *Engine) RollbackDeployment(ctx context.Context, agentID domain.AgentID) error {
	if err := e.instances.StopInstance(ctx, agentID); err != nil {
		return fmt.Errorf("rollback: stop instance: %w", err)
	}
	return e.deallocate(ctx, agentID)
}

// CleanupAgent releases any resources/instance the agent still holds.
// Idempotent.
func (e *Engine) CleanupAgent(ctx context.Context, agentID domain.AgentID) error {
	_ = e.instances.StopInstance(ctx, agentID)
	return e.deallocate(ctx, agentID)
}

func (e *Engine) register(id domain.DeploymentID, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight[id] = &inFlightDeployment{status: domain.DeploymentInProgress, cancel: cancel}
}

func (e *Engine) deregister(id domain.DeploymentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

func (e *Engine) deallocate(ctx context.Context, agentID domain.AgentID) error {
	if err := e.allocator.DeallocateResources(ctx, agentID); err != nil {
		return fmt.Errorf("deallocate resources: %w", err)
	}
	return nil
}

func (e *Engine) fail(req domain.DeploymentRequest, startedAt time.Time, err error) (domain.DeploymentResult, error) {
	return e.failWithMetrics(req, startedAt, domain.DeploymentMetrics{InstancesFailed: 1}, err)
}

func (e *Engine) failWithMetrics(req domain.DeploymentRequest, startedAt time.Time, metrics domain.DeploymentMetrics, err error) (domain.DeploymentResult, error) {
	msg := err.Error()
	metrics.TotalDuration = time.Since(startedAt)
	e.metrics.observe(domain.DeploymentFailed, metrics.TotalDuration.Seconds())
	return domain.DeploymentResult{
		DeploymentID: req.DeploymentID,
		AgentID:      req.AgentID,
		Status:       domain.DeploymentFailed,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
		ErrorMessage: &msg,
		Metrics:      metrics,
	}, err
}

func instancesFailedMetrics() domain.DeploymentMetrics {
	return domain.DeploymentMetrics{InstancesDeployed: 0, InstancesFailed: 1}
}

func partialMetrics(r InstanceDeploymentResult) domain.DeploymentMetrics {
	return domain.DeploymentMetrics{
		InstancesDeployed:      0,
		InstancesFailed:        1,
		MemoryPeak:             r.MemoryUsed,
		FuelConsumed:           r.FuelConsumed,
		HealthCheckSuccessRate: 0,
	}
}
