package hotreload

import (
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
)

// trafficSplitSteps are the ramp percentages used when
// HotReloadConfig.ProgressiveRollout is set; otherwise the engine jumps
// straight to Config.TrafficSplit (spec.md §4.3 "traffic_splitting").
var trafficSplitSteps = []int{5, 10, 25, 50, 75, 100}

// runTrafficSplitting deploys the new version isolated, then ramps live
// traffic to it step by step (or in one jump), rolling back to 0% on any
// trigger, and finally stopping the old version once traffic is fully
// cut over.
func runTrafficSplitting(s *strategyCtx) (domain.ReloadMetrics, error) {
	e, req := s.engine, s.req
	resources := req.Config.ResourceRequirements.Doubled()

	e.setStatus(req.ReloadID, domain.ReloadStarting)
	if err := e.runtime.DeployVersion(s.ctx, req.AgentID, req.ToVersion, req.WasmBytes, resources); err != nil {
		return domain.ReloadMetrics{}, &domain.HotReloadError{
			Kind: domain.ReloadInsufficientResources, Detail: "deploy isolated new version failed", OldInstanceGone: false, Wrapped: err,
		}
	}

	e.setStatus(req.ReloadID, domain.ReloadInProgress)

	target := int(req.Config.TrafficSplit)
	if target == 0 {
		target = 100
	}
	steps := []int{target}
	if req.Config.ProgressiveRollout {
		steps = stepsUpTo(target)
	}

	var latest domain.ReloadMetrics
	for _, pct := range steps {
		select {
		case <-s.active.rollbackReq:
			e.router.SetSplit(s.ctx, req.AgentID, req.FromVersion, req.ToVersion, 0)
			e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
			return latest, &domain.HotReloadError{Kind: domain.ReloadAutomaticRollback, Reason: "external rollback requested", OldInstanceGone: false}
		case <-s.ctx.Done():
			return latest, domain.TimeoutExceededReload(req.Config.RollbackCapability.RollbackTimeout)
		default:
		}

		split, err := domain.NewTrafficSplitPercentage(pct)
		if err != nil {
			continue
		}
		if err := e.router.SetSplit(s.ctx, req.AgentID, req.FromVersion, req.ToVersion, split); err != nil {
			e.router.SetSplit(s.ctx, req.AgentID, req.FromVersion, req.ToVersion, 0)
			e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
			return latest, &domain.HotReloadError{
				Kind: domain.ReloadTrafficSplittingFailed, Detail: "router failed to apply split", OldInstanceGone: false, Wrapped: err,
			}
		}

		if req.Config.WarmupDuration > 0 {
			if err := e.clock.Sleep(s.ctx, req.Config.WarmupDuration/time.Duration(len(steps))); err != nil {
				return latest, domain.TimeoutExceededReload(req.Config.RollbackCapability.RollbackTimeout)
			}
		}

		m, err := e.runtime.SampleMetrics(s.ctx, req.AgentID, req.ToVersion)
		if err == nil {
			latest = m
			if fire, trigger := req.Config.RollbackCapability.ShouldTriggerRollback(m); fire {
				e.router.SetSplit(s.ctx, req.AgentID, req.FromVersion, req.ToVersion, 0)
				e.runtime.StopVersion(s.ctx, req.AgentID, req.ToVersion)
				return latest, &domain.HotReloadError{Kind: domain.ReloadAutomaticRollback, Reason: string(trigger.Kind), OldInstanceGone: false}
			}
		}
	}

	if err := e.router.CutoverFully(s.ctx, req.AgentID, req.ToVersion); err != nil {
		return latest, &domain.HotReloadError{
			Kind: domain.ReloadTrafficSplittingFailed, Detail: "cutover failed", OldInstanceGone: false, Wrapped: err,
		}
	}
	if err := e.runtime.StopVersion(s.ctx, req.AgentID, req.FromVersion); err != nil {
		return latest, &domain.HotReloadError{
			Kind: domain.ReloadRollbackFailed, Detail: "stop old version after cutover failed", OldInstanceGone: false, Wrapped: err,
		}
	}
	return latest, nil
}

func stepsUpTo(target int) []int {
	out := make([]int, 0, len(trafficSplitSteps))
	for _, s := range trafficSplitSteps {
		if s >= target {
			out = append(out, target)
			break
		}
		out = append(out, s)
	}
	if len(out) == 0 || out[len(out)-1] != target {
		out = append(out, target)
	}
	return out
}
