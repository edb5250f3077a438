// Package snapshots implements the bounded per-agent version history used
// by the Hot-Reload Engine to support rollback (spec.md §4.3, "preserve
// previous N versions, oldest evicted first"). Built on
// hashicorp/golang-lru/v2's simplelru.LRU, but only ever Add'd to and
// Peek'd/Keys'd from — never Get — so the library's LRU eviction policy
// degenerates to pure FIFO-by-insertion, matching the spec's exact
// eviction requirement.
package snapshots

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/caxtonio/agentcore/internal/domain"
)

// Store holds one bounded version ring per agent.
type Store struct {
	mu    sync.Mutex
	rings map[domain.AgentID]*lru.LRU[domain.VersionNumber, domain.VersionSnapshot]
	cap   int
}

// NewStore constructs a snapshot store where each agent preserves at most
// capacity versions.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		rings: make(map[domain.AgentID]*lru.LRU[domain.VersionNumber, domain.VersionSnapshot]),
		cap:   capacity,
	}
}

func (s *Store) ringFor(agentID domain.AgentID) *lru.LRU[domain.VersionNumber, domain.VersionSnapshot] {
	ring, ok := s.rings[agentID]
	if !ok {
		// onEvict is nil: eviction here only ever drops the oldest entry,
		// nothing to release.
		ring, _ = lru.NewLRU[domain.VersionNumber, domain.VersionSnapshot](s.cap, nil)
		s.rings[agentID] = ring
	}
	return ring
}

// Preserve records a version snapshot, evicting the oldest preserved
// version for this agent if the ring is already at capacity.
func (s *Store) Preserve(agentID domain.AgentID, snap domain.VersionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ringFor(agentID).Add(snap.VersionNumber, snap)
}

// Lookup finds a preserved version without affecting its recency —
// Peek only, never Get.
func (s *Store) Lookup(agentID domain.AgentID, version domain.VersionNumber) (domain.VersionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[agentID]
	if !ok {
		return domain.VersionSnapshot{}, false
	}
	return ring.Peek(version)
}

// Previous returns the most recently preserved version for an agent, i.e.
// the rollback target for an in-progress reload's FromVersion.
func (s *Store) Previous(agentID domain.AgentID) (domain.VersionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[agentID]
	if !ok || ring.Len() == 0 {
		return domain.VersionSnapshot{}, false
	}
	keys := ring.Keys()
	last := keys[len(keys)-1]
	return ring.Peek(last)
}

// All returns every preserved version for an agent, oldest first, without
// disturbing recency order.
func (s *Store) All(agentID domain.AgentID) []domain.VersionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[agentID]
	if !ok {
		return nil
	}
	keys := ring.Keys()
	out := make([]domain.VersionSnapshot, 0, len(keys))
	for _, k := range keys {
		if v, ok := ring.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Drop removes all preserved history for an agent (spec.md §4.5 "remove
// agent" cleanup).
func (s *Store) Drop(agentID domain.AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, agentID)
}
