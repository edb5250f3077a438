package wasmtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

// ResourceAllocator tracks how much of a fixed host-wide memory budget is
// committed to running agents, rejecting admission once the budget is
// exhausted (spec.md §4.2 "insufficient resources").
type ResourceAllocator struct {
	mu                sync.Mutex
	totalMemoryBudget uint64
	committed         map[domain.AgentID]domain.ResourceRequirements
}

// NewResourceAllocator builds an allocator with a fixed total memory
// budget; 0 means unbounded (every request is admitted).
func NewResourceAllocator(totalMemoryBudget uint64) *ResourceAllocator {
	return &ResourceAllocator{
		totalMemoryBudget: totalMemoryBudget,
		committed:         make(map[domain.AgentID]domain.ResourceRequirements),
	}
}

func (a *ResourceAllocator) AllocateResources(ctx context.Context, agentID domain.AgentID, req domain.ResourceRequirements) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.totalMemoryBudget > 0 {
		if a.committedLocked()+req.MemoryLimit > a.totalMemoryBudget {
			return fmt.Errorf("insufficient memory budget: %d requested, %d available", req.MemoryLimit, a.totalMemoryBudget-a.committedLocked())
		}
	}
	a.committed[agentID] = req
	return nil
}

func (a *ResourceAllocator) DeallocateResources(ctx context.Context, agentID domain.AgentID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.committed, agentID)
	return nil
}

func (a *ResourceAllocator) CheckResourceAvailability(ctx context.Context, req domain.ResourceRequirements) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.totalMemoryBudget == 0 {
		return true, nil
	}
	return a.committedLocked()+req.MemoryLimit <= a.totalMemoryBudget, nil
}

func (a *ResourceAllocator) committedLocked() uint64 {
	var total uint64
	for _, r := range a.committed {
		total += r.MemoryLimit
	}
	return total
}
