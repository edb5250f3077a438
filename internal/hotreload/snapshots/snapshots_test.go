package snapshots

import (
	"testing"
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
)

func snapshot(n domain.VersionNumber) domain.VersionSnapshot {
	return domain.VersionSnapshot{Version: domain.NewAgentVersion(), VersionNumber: n, CreatedAt: time.Now()}
}

func TestStorePreserveAndLookup(t *testing.T) {
	s := NewStore(3)
	agentID := domain.NewAgentID()

	s.Preserve(agentID, snapshot(1))
	got, ok := s.Lookup(agentID, 1)
	if !ok {
		t.Fatal("expected version 1 to be found")
	}
	if got.VersionNumber != 1 {
		t.Errorf("expected version 1, got %d", got.VersionNumber)
	}
}

func TestStoreEvictsOldestOnCapacity(t *testing.T) {
	s := NewStore(2)
	agentID := domain.NewAgentID()

	s.Preserve(agentID, snapshot(1))
	s.Preserve(agentID, snapshot(2))
	s.Preserve(agentID, snapshot(3))

	if _, ok := s.Lookup(agentID, 1); ok {
		t.Error("expected version 1 to have been evicted (oldest, over capacity)")
	}
	if _, ok := s.Lookup(agentID, 2); !ok {
		t.Error("expected version 2 to remain")
	}
	if _, ok := s.Lookup(agentID, 3); !ok {
		t.Error("expected version 3 to remain")
	}
}

func TestStoreEvictionIsInsertionOrderNotRecency(t *testing.T) {
	// Peek must never be promoted to Get internally: looking a version up
	// repeatedly must not save it from FIFO eviction.
	s := NewStore(2)
	agentID := domain.NewAgentID()

	s.Preserve(agentID, snapshot(1))
	s.Preserve(agentID, snapshot(2))

	for i := 0; i < 5; i++ {
		s.Lookup(agentID, 1)
	}

	s.Preserve(agentID, snapshot(3))

	if _, ok := s.Lookup(agentID, 1); ok {
		t.Error("repeated lookups must not protect version 1 from FIFO eviction")
	}
}

func TestStorePreviousReturnsMostRecentlyInserted(t *testing.T) {
	s := NewStore(5)
	agentID := domain.NewAgentID()

	s.Preserve(agentID, snapshot(1))
	s.Preserve(agentID, snapshot(2))
	s.Preserve(agentID, snapshot(3))

	prev, ok := s.Previous(agentID)
	if !ok {
		t.Fatal("expected a previous version")
	}
	if prev.VersionNumber != 3 {
		t.Errorf("expected version 3 (most recently preserved), got %d", prev.VersionNumber)
	}
}

func TestStoreAllReturnsEveryPreservedVersion(t *testing.T) {
	s := NewStore(5)
	agentID := domain.NewAgentID()

	s.Preserve(agentID, snapshot(1))
	s.Preserve(agentID, snapshot(2))

	all := s.All(agentID)
	if len(all) != 2 {
		t.Fatalf("expected 2 preserved versions, got %d", len(all))
	}
}

func TestStoreDropRemovesAllHistory(t *testing.T) {
	s := NewStore(5)
	agentID := domain.NewAgentID()
	s.Preserve(agentID, snapshot(1))

	s.Drop(agentID)

	if all := s.All(agentID); len(all) != 0 {
		t.Errorf("expected no history after Drop, got %d entries", len(all))
	}
	if _, ok := s.Previous(agentID); ok {
		t.Error("expected no previous version after Drop")
	}
}

func TestStoreIsolatesAgents(t *testing.T) {
	s := NewStore(2)
	a1, a2 := domain.NewAgentID(), domain.NewAgentID()

	s.Preserve(a1, snapshot(1))
	s.Preserve(a2, snapshot(1))
	s.Drop(a1)

	if _, ok := s.Lookup(a1, 1); ok {
		t.Error("expected a1's history to be dropped")
	}
	if _, ok := s.Lookup(a2, 1); !ok {
		t.Error("expected a2's history to remain untouched")
	}
}
