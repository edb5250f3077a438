package hotreload

import "github.com/caxtonio/agentcore/internal/domain"

// runGraceful snapshots and optionally preserves the old version's state,
// deploys the new version, warms it up, verifies health, restores preserved
// state, then drains and stops the old version (spec.md §4.3 "graceful": no
// capacity loss, brief double-resource window during drain).
func runGraceful(s *strategyCtx) (domain.ReloadMetrics, error) {
	e, req := s.engine, s.req

	e.setStatus(req.ReloadID, domain.ReloadStarting)

	var preservedState []byte
	if req.Config.PreserveState {
		state, err := e.runtime.PreserveState(s.ctx, req.AgentID, req.FromVersion)
		if err != nil {
			return domain.ReloadMetrics{}, &domain.HotReloadError{
				Kind: domain.ReloadStatePreservationFailed, Detail: "preserve old version state failed", OldInstanceGone: false, Wrapped: err,
			}
		}
		preservedState = state
	}

	if err := e.runtime.DeployVersion(s.ctx, req.AgentID, req.ToVersion, req.WasmBytes, req.Config.ResourceRequirements); err != nil {
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadStatePreservationFailed, Detail: "deploy new version failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	if req.Config.WarmupDuration > 0 {
		if err := e.clock.Sleep(s.ctx, req.Config.WarmupDuration); err != nil {
			e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
			return domain.ReloadMetrics{}, domain.TimeoutExceededReload(req.Config.RollbackCapability.RollbackTimeout)
		}
	}

	e.setStatus(req.ReloadID, domain.ReloadInProgress)
	healthy, err := e.runtime.HealthCheckVersion(s.ctx, req.AgentID, req.ToVersion)
	if err != nil || !healthy {
		e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadAutomaticRollback, Reason: "new version failed health check", OldInstanceGone: false,
		}
	}

	metrics, err := e.runtime.SampleMetrics(s.ctx, req.AgentID, req.ToVersion)
	if err != nil {
		metrics = domain.ReloadMetrics{HealthCheckSuccessRate: 100}
	}
	if fire, trigger := req.Config.RollbackCapability.ShouldTriggerRollback(metrics); fire {
		e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
		return metrics, &domain.HotReloadError{
			Kind: domain.ReloadAutomaticRollback, Reason: string(trigger.Kind), OldInstanceGone: false,
		}
	}

	if req.Config.PreserveState && preservedState != nil {
		if err := e.runtime.RestoreState(s.ctx, req.AgentID, req.ToVersion, preservedState); err != nil {
			e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
			return metrics, &domain.HotReloadError{
				Kind: domain.ReloadStatePreservationFailed, Detail: "restore state into new version failed", OldInstanceGone: false, Wrapped: err,
			}
		}
	}

	drain := req.Config.DrainTimeout
	if drain.Seconds == 0 {
		drain, _ = domain.NewDrainTimeout(domain.MinDrainTimeoutSecs)
	}
	if err := e.router.DrainTo(s.ctx, req.AgentID, req.FromVersion, drain); err != nil {
		// Draining is best-effort; the old version is stopped regardless so
		// the agent doesn't end up running two versions indefinitely.
	}
	if err := e.runtime.StopVersion(s.ctx, req.AgentID, req.FromVersion); err != nil {
		return metrics, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "stop old version after drain failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	return metrics, nil
}
