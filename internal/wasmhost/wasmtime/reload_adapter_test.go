package wasmtime

import (
	"context"
	"testing"

	"github.com/caxtonio/agentcore/internal/domain"
)

func TestTrafficRouterCutoverFullySetsPercentageTo100(t *testing.T) {
	r := NewTrafficRouter()
	agentID := domain.NewAgentID()
	to := domain.NewAgentVersion()

	if err := r.CutoverFully(context.Background(), agentID, to); err != nil {
		t.Fatalf("CutoverFully: %v", err)
	}
	if got := r.Percentage(agentID); got != 100 {
		t.Errorf("expected 100%% after cutover, got %d", got)
	}
}

func TestTrafficRouterSetSplitTracksLatestPercentage(t *testing.T) {
	r := NewTrafficRouter()
	agentID := domain.NewAgentID()
	from, to := domain.NewAgentVersion(), domain.NewAgentVersion()

	if err := r.SetSplit(context.Background(), agentID, from, to, 25); err != nil {
		t.Fatalf("SetSplit: %v", err)
	}
	if got := r.Percentage(agentID); got != 25 {
		t.Errorf("expected 25%%, got %d", got)
	}

	if err := r.SetSplit(context.Background(), agentID, from, to, 75); err != nil {
		t.Fatalf("SetSplit: %v", err)
	}
	if got := r.Percentage(agentID); got != 75 {
		t.Errorf("expected 75%% after a second split, got %d", got)
	}
}

func TestTrafficRouterPercentageDefaultsToZeroForUnknownAgent(t *testing.T) {
	r := NewTrafficRouter()
	if got := r.Percentage(domain.NewAgentID()); got != 0 {
		t.Errorf("expected 0%% for an agent with no recorded split, got %d", got)
	}
}

func TestTrafficRouterDrainToIsANoop(t *testing.T) {
	r := NewTrafficRouter()
	if err := r.DrainTo(context.Background(), domain.NewAgentID(), domain.NewAgentVersion(), domain.DrainTimeout{Seconds: domain.MinDrainTimeoutSecs}); err != nil {
		t.Errorf("expected DrainTo to succeed trivially, got %v", err)
	}
}
