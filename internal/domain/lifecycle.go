package domain

import "time"

// defaultHistoryCapacity bounds the per-agent transition-history ring.
const defaultHistoryCapacity = 50

// AgentLifecycle is the authoritative per-agent record the orchestrator
// owns exclusively (spec.md §3). failure_reason is set if and only if
// CurrentState == StateFailed — enforced by SetFailed/Transition, never
// by direct field mutation from outside this package.
type AgentLifecycle struct {
	AgentID       AgentID
	AgentName     *AgentName
	Version       AgentVersion
	VersionNumber VersionNumber
	CurrentState  AgentState
	FailureReason *string

	CreatedAt      time.Time
	StateEnteredAt time.Time

	history *History
}

// NewAgentLifecycle creates a lifecycle record in StateUnloaded.
func NewAgentLifecycle(id AgentID, name *AgentName, now time.Time) *AgentLifecycle {
	return &AgentLifecycle{
		AgentID:        id,
		AgentName:      name,
		CurrentState:   StateUnloaded,
		CreatedAt:      now,
		StateEnteredAt: now,
		history:        NewHistory(defaultHistoryCapacity),
	}
}

// Transition moves the lifecycle to `to`, recording the move in history and
// updating StateEnteredAt. Returns an error without mutating anything if the
// move is illegal.
func (l *AgentLifecycle) Transition(to AgentState, now time.Time) error {
	if !CanTransition(l.CurrentState, to) {
		return &InvalidStateTransitionError{From: l.CurrentState, To: to}
	}
	l.history.Append(StateTransition{From: l.CurrentState, To: to, At: now.UnixNano()})
	l.CurrentState = to
	l.StateEnteredAt = now
	if to != StateFailed {
		l.FailureReason = nil
	}
	return nil
}

// SetFailed forces the lifecycle into StateFailed with the given reason,
// regardless of the current state's normal transition table — this is the
// one transition that is always legal, since any non-terminal state can
// fail (spec.md §4.1).
func (l *AgentLifecycle) SetFailed(reason string, now time.Time) {
	l.history.Append(StateTransition{From: l.CurrentState, To: StateFailed, At: now.UnixNano()})
	l.CurrentState = StateFailed
	l.StateEnteredAt = now
	l.FailureReason = &reason
}

// History returns a copy of the recorded transitions, oldest first.
func (l *AgentLifecycle) History() []StateTransition {
	return l.history.Entries()
}

// Snapshot returns a value copy of the record safe to hand to a caller
// outside the orchestrator's lock.
func (l *AgentLifecycle) Snapshot() AgentLifecycle {
	cp := *l
	cp.history = NewHistory(defaultHistoryCapacity)
	for _, e := range l.history.Entries() {
		cp.history.Append(e)
	}
	if l.FailureReason != nil {
		reason := *l.FailureReason
		cp.FailureReason = &reason
	}
	if l.AgentName != nil {
		name := *l.AgentName
		cp.AgentName = &name
	}
	return cp
}

// AgentStatus is the derived/observable view of an agent (spec.md §3).
type AgentStatus struct {
	Lifecycle        AgentLifecycle
	LastDeploymentID *DeploymentID
	LastReloadID     *ReloadID
	MemoryAllocated  uint64
	Uptime           time.Duration
	LastActivityAt   time.Time
	Health           Health
}
