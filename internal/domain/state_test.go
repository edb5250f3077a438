package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from AgentState
		to   AgentState
		want bool
	}{
		{StateUnloaded, StateLoaded, true},
		{StateUnloaded, StateRunning, false},
		{StateLoaded, StateReady, true},
		{StateReady, StateRunning, true},
		{StateReady, StateLoaded, true},
		{StateRunning, StateRunning, true},
		{StateRunning, StateDraining, true},
		{StateDraining, StateStopped, true},
		{StateStopped, StateLoaded, false},
		{StateFailed, StateUnloaded, false},
		{StateLoaded, StateLoaded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAgentLifecycleTransitionRejectsIllegalMove(t *testing.T) {
	now := time.Now()
	l := NewAgentLifecycle(NewAgentID(), nil, now)

	if err := l.Transition(StateRunning, now); err == nil {
		t.Fatal("expected error transitioning unloaded -> running directly")
	}
	if l.CurrentState != StateUnloaded {
		t.Fatalf("state must be unchanged after a rejected transition, got %s", l.CurrentState)
	}
}

func TestAgentLifecycleSetFailedAlwaysLegal(t *testing.T) {
	now := time.Now()
	l := NewAgentLifecycle(NewAgentID(), nil, now)
	if err := l.Transition(StateLoaded, now); err != nil {
		t.Fatalf("unloaded -> loaded: %v", err)
	}

	l.SetFailed("boom", now)
	if l.CurrentState != StateFailed {
		t.Fatalf("expected StateFailed, got %s", l.CurrentState)
	}
	if l.FailureReason == nil || *l.FailureReason != "boom" {
		t.Fatalf("expected failure reason 'boom', got %v", l.FailureReason)
	}
}

func TestAgentLifecycleTransitionClearsFailureReason(t *testing.T) {
	now := time.Now()
	l := NewAgentLifecycle(NewAgentID(), nil, now)
	l.SetFailed("boom", now)
	if l.FailureReason == nil {
		t.Fatal("expected a failure reason to be set")
	}

	// Failed has no legal outgoing transitions in the adjacency table, so
	// directly exercise the invariant via a record that is not yet failed.
	l2 := NewAgentLifecycle(NewAgentID(), nil, now)
	if err := l2.Transition(StateLoaded, now); err != nil {
		t.Fatalf("unloaded -> loaded: %v", err)
	}
	if l2.FailureReason != nil {
		t.Fatalf("non-failed lifecycle must carry a nil failure reason, got %v", l2.FailureReason)
	}
}
