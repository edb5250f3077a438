package orchestrator

import "sync"

// Stats is the lifecycle-wide counter set, ported from the original
// implementation's AgentLifecycleManager statistics (original_source's
// lifecycle module) — trimmed of the capability-registry concept, which
// has no equivalent in this spec.
type Stats struct {
	mu sync.Mutex

	TotalAgents       uint64
	RunningAgents     uint64
	FailedAgents      uint64
	TotalDeployments  uint64
	FailedDeployments uint64
	TotalReloads      uint64
	FailedReloads     uint64
	AutomaticRollbacks uint64
}

func newStats() *Stats { return &Stats{} }

// Snapshot returns a copy safe to hand to a caller outside the lock.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TotalAgents:        s.TotalAgents,
		RunningAgents:       s.RunningAgents,
		FailedAgents:        s.FailedAgents,
		TotalDeployments:    s.TotalDeployments,
		FailedDeployments:   s.FailedDeployments,
		TotalReloads:        s.TotalReloads,
		FailedReloads:       s.FailedReloads,
		AutomaticRollbacks:  s.AutomaticRollbacks,
	}
}

func (s *Stats) agentAdded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalAgents++
}

func (s *Stats) agentRemoved(wasRunning, wasFailed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalAgents > 0 {
		s.TotalAgents--
	}
	if wasRunning && s.RunningAgents > 0 {
		s.RunningAgents--
	}
	if wasFailed && s.FailedAgents > 0 {
		s.FailedAgents--
	}
}

func (s *Stats) enteredRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningAgents++
}

func (s *Stats) leftRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RunningAgents > 0 {
		s.RunningAgents--
	}
}

func (s *Stats) enteredFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailedAgents++
}

func (s *Stats) deployment(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalDeployments++
	if !ok {
		s.FailedDeployments++
	}
}

func (s *Stats) reload(ok, rolledBack bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalReloads++
	if !ok {
		s.FailedReloads++
	}
	if rolledBack {
		s.AutomaticRollbacks++
	}
}
