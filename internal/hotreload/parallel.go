package hotreload

import "github.com/caxtonio/agentcore/internal/domain"

// runParallel deploys the new version alongside the still-running old one
// (spec.md §4.3 "parallel": both execute concurrently, doubled resource
// budget, old version stopped only once the new one has proven itself
// during warmup). Monitored the same way traffic-splitting is; on a clean
// exit, traffic is cut over to the new version before the old one stops.
func runParallel(s *strategyCtx) (domain.ReloadMetrics, error) {
	e, req := s.engine, s.req
	resources := req.Config.ResourceRequirements.Doubled()

	e.setStatus(req.ReloadID, domain.ReloadStarting)
	if err := e.runtime.DeployVersion(s.ctx, req.AgentID, req.ToVersion, req.WasmBytes, resources); err != nil {
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadInsufficientResources, Detail: "deploy isolated new version failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	e.setStatus(req.ReloadID, domain.ReloadInProgress)
	metrics, rollbackErr := monitorAlongside(s, req.ToVersion)
	if rollbackErr != nil {
		e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
		return metrics, rollbackErr
	}

	if err := e.router.CutoverFully(s.ctx, req.AgentID, req.ToVersion); err != nil {
		return metrics, &domain.HotReloadError{
			Kind: domain.ReloadTrafficSplittingFailed, Detail: "cutover failed", OldInstanceGone: false, Wrapped: err,
		}
	}
	if err := e.runtime.StopVersion(s.ctx, req.AgentID, req.FromVersion); err != nil {
		return metrics, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "stop old version after parallel warmup failed", OldInstanceGone: false, Wrapped: err,
		}
	}
	return metrics, nil
}

// monitorAlongside runs the new version's warmup window in small steps,
// sampling metrics and checking rollback triggers (and an external
// rollback/cancel request) between each step, so a degrading new version
// is caught well before the full warmup elapses.
func monitorAlongside(s *strategyCtx, version domain.AgentVersion) (domain.ReloadMetrics, error) {
	e, req := s.engine, s.req
	warmup := req.Config.WarmupDuration
	if warmup <= 0 {
		warmup = domain.DefaultRollbackTimeout / 4
	}
	const steps = 5
	step := warmup / steps

	var latest domain.ReloadMetrics
	for i := 0; i < steps; i++ {
		select {
		case <-s.active.rollbackReq:
			return latest, &domain.HotReloadError{Kind: domain.ReloadAutomaticRollback, Reason: "external rollback requested", OldInstanceGone: false}
		case <-s.ctx.Done():
			return latest, domain.TimeoutExceededReload(req.Config.RollbackCapability.RollbackTimeout)
		default:
		}

		if err := e.clock.Sleep(s.ctx, step); err != nil {
			return latest, domain.TimeoutExceededReload(req.Config.RollbackCapability.RollbackTimeout)
		}

		healthy, err := e.runtime.HealthCheckVersion(s.ctx, req.AgentID, version)
		if err != nil || !healthy {
			return latest, &domain.HotReloadError{Kind: domain.ReloadAutomaticRollback, Reason: "health check failed during warmup", OldInstanceGone: false}
		}

		m, err := e.runtime.SampleMetrics(s.ctx, req.AgentID, version)
		if err != nil {
			continue
		}
		latest = m
		if fire, trigger := req.Config.RollbackCapability.ShouldTriggerRollback(m); fire {
			return latest, &domain.HotReloadError{Kind: domain.ReloadAutomaticRollback, Reason: string(trigger.Kind), OldInstanceGone: false}
		}
	}
	return latest, nil
}
