// Package fake provides in-memory collaborator implementations for
// exercising the Deployment Engine, Hot-Reload Engine, and Lifecycle
// Orchestrator without a real wasmtime runtime — grounded on the
// teacher's test doubles pattern (policy/engine_test.go's stub
// evaluators) generalized into full fakes with inspectable call logs.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

// Resources is an in-memory ResourceAllocator. A zero value has no
// admission ceiling; set TotalMemoryBudget/TotalFuelBudget to make
// CheckResourceAvailability meaningful.
type Resources struct {
	mu sync.Mutex

	TotalMemoryBudget uint64 // 0 = unbounded
	allocated         map[domain.AgentID]domain.ResourceRequirements
	Calls             []string

	// FailAllocate, if set, makes AllocateResources fail for this agent.
	FailAllocate map[domain.AgentID]bool
}

// NewResources constructs an empty Resources fake.
func NewResources() *Resources {
	return &Resources{allocated: make(map[domain.AgentID]domain.ResourceRequirements)}
}

func (r *Resources) AllocateResources(ctx context.Context, agentID domain.AgentID, req domain.ResourceRequirements) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "allocate:"+agentID.String())
	if r.FailAllocate[agentID] {
		return fmt.Errorf("fake: allocation denied for %s", agentID)
	}
	if r.TotalMemoryBudget > 0 {
		var used uint64
		for _, a := range r.allocated {
			used += a.MemoryLimit
		}
		if used+req.MemoryLimit > r.TotalMemoryBudget {
			return fmt.Errorf("fake: insufficient memory budget")
		}
	}
	r.allocated[agentID] = req
	return nil
}

func (r *Resources) DeallocateResources(ctx context.Context, agentID domain.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "deallocate:"+agentID.String())
	delete(r.allocated, agentID)
	return nil
}

func (r *Resources) CheckResourceAvailability(ctx context.Context, req domain.ResourceRequirements) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TotalMemoryBudget == 0 {
		return true, nil
	}
	var used uint64
	for _, a := range r.allocated {
		used += a.MemoryLimit
	}
	return used+req.MemoryLimit <= r.TotalMemoryBudget, nil
}

