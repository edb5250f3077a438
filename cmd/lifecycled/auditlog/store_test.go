package auditlog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/caxtonio/agentcore/cmd/lifecycled/auditlog"
	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/orchestrator"
)

func openTestStore(t *testing.T) *auditlog.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := auditlog.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndForAgentRoundTrip(t *testing.T) {
	store := openTestStore(t)
	agentID := domain.NewAgentID()

	ev := orchestrator.Event{
		Kind:    orchestrator.EventStateTransition,
		AgentID: agentID,
		Transition: &domain.StateTransition{
			From: domain.StateLoaded,
			To:   domain.StateReady,
			At:   1,
		},
	}
	if err := store.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := store.ForAgent(context.Background(), agentID.String())
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(events))
	}
	if events[0].Kind != string(orchestrator.EventStateTransition) {
		t.Errorf("expected kind %q, got %q", orchestrator.EventStateTransition, events[0].Kind)
	}
	if events[0].AgentID != agentID.String() {
		t.Errorf("expected agent id %q, got %q", agentID, events[0].AgentID)
	}
}

func TestAllReturnsEventsAcrossAgents(t *testing.T) {
	store := openTestStore(t)
	a1, a2 := domain.NewAgentID(), domain.NewAgentID()

	for _, id := range []domain.AgentID{a1, a2} {
		ev := orchestrator.Event{
			Kind:    orchestrator.EventStateTransition,
			AgentID: id,
			Transition: &domain.StateTransition{
				From: domain.StateUnloaded,
				To:   domain.StateLoaded,
				At:   1,
			},
		}
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(events))
	}
}

func TestForAgentWithNoEventsReturnsEmpty(t *testing.T) {
	store := openTestStore(t)
	events, err := store.ForAgent(context.Background(), domain.NewAgentID().String())
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events for an unknown agent, got %d", len(events))
	}
}

func TestFollowRecordsEventsUntilChannelCloses(t *testing.T) {
	store := openTestStore(t)
	agentID := domain.NewAgentID()
	ch := make(chan orchestrator.Event, 2)
	ch <- orchestrator.Event{
		Kind:    orchestrator.EventStateTransition,
		AgentID: agentID,
		Transition: &domain.StateTransition{
			From: domain.StateUnloaded,
			To:   domain.StateLoaded,
			At:   1,
		},
	}
	close(ch)

	store.Follow(context.Background(), ch, nil)

	events, err := store.ForAgent(context.Background(), agentID.String())
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event recorded via Follow, got %d", len(events))
	}
}
