package wasmtime

import (
	"context"
	"testing"

	"github.com/caxtonio/agentcore/internal/domain"
)

func testReq(t *testing.T, memory uint64) domain.ResourceRequirements {
	t.Helper()
	r, err := domain.NewResourceRequirements(memory, domain.MinFuelLimit, false, 0)
	if err != nil {
		t.Fatalf("NewResourceRequirements: %v", err)
	}
	return r
}

func TestResourceAllocatorUnboundedBudgetAdmitsEverything(t *testing.T) {
	a := NewResourceAllocator(0)
	ok, err := a.CheckResourceAvailability(context.Background(), testReq(t, domain.MaxMemoryLimitBytes))
	if err != nil {
		t.Fatalf("CheckResourceAvailability: %v", err)
	}
	if !ok {
		t.Error("an unbounded allocator (budget 0) should admit any request")
	}
}

func TestResourceAllocatorRejectsOverBudget(t *testing.T) {
	budget := uint64(domain.MinMemoryLimitBytes)
	a := NewResourceAllocator(budget)

	agentID := domain.NewAgentID()
	if err := a.AllocateResources(context.Background(), agentID, testReq(t, budget)); err != nil {
		t.Fatalf("first allocation should fit exactly within budget: %v", err)
	}

	other := domain.NewAgentID()
	if err := a.AllocateResources(context.Background(), other, testReq(t, domain.MinMemoryLimitBytes)); err == nil {
		t.Error("expected the second allocation to be rejected once the budget is exhausted")
	}
}

func TestResourceAllocatorDeallocateFreesBudget(t *testing.T) {
	budget := uint64(domain.MinMemoryLimitBytes)
	a := NewResourceAllocator(budget)
	agentID := domain.NewAgentID()

	if err := a.AllocateResources(context.Background(), agentID, testReq(t, budget)); err != nil {
		t.Fatalf("AllocateResources: %v", err)
	}
	if err := a.DeallocateResources(context.Background(), agentID); err != nil {
		t.Fatalf("DeallocateResources: %v", err)
	}

	ok, err := a.CheckResourceAvailability(context.Background(), testReq(t, budget))
	if err != nil {
		t.Fatalf("CheckResourceAvailability: %v", err)
	}
	if !ok {
		t.Error("expected budget to be available again after deallocation")
	}
}

func TestResourceAllocatorDeallocateUnknownAgentIsNoop(t *testing.T) {
	a := NewResourceAllocator(uint64(domain.MinMemoryLimitBytes))
	if err := a.DeallocateResources(context.Background(), domain.NewAgentID()); err != nil {
		t.Errorf("deallocating an agent with no committed resources should be a no-op, got %v", err)
	}
}
