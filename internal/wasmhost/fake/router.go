package fake

import (
	"context"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

// Router is an in-memory hotreload.TrafficRouter: records the last
// applied split per agent for test assertions.
type Router struct {
	mu      sync.Mutex
	splits  map[domain.AgentID]domain.TrafficSplitPercentage
	cutover map[domain.AgentID]domain.AgentVersion
	Calls   []string

	FailSetSplit bool
}

func NewRouter() *Router {
	return &Router{
		splits:  make(map[domain.AgentID]domain.TrafficSplitPercentage),
		cutover: make(map[domain.AgentID]domain.AgentVersion),
	}
}

func (r *Router) SetSplit(ctx context.Context, agentID domain.AgentID, from, to domain.AgentVersion, toPercentage domain.TrafficSplitPercentage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "split:"+to.String())
	if r.FailSetSplit {
		return context.DeadlineExceeded
	}
	r.splits[agentID] = toPercentage
	return nil
}

func (r *Router) DrainTo(ctx context.Context, agentID domain.AgentID, from domain.AgentVersion, timeout domain.DrainTimeout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "drain:"+from.String())
	return nil
}

func (r *Router) CutoverFully(ctx context.Context, agentID domain.AgentID, to domain.AgentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "cutover:"+to.String())
	r.cutover[agentID] = to
	r.splits[agentID] = domain.TrafficSplitPercentage(100)
	return nil
}

// Split returns the last applied split percentage for an agent.
func (r *Router) Split(agentID domain.AgentID) domain.TrafficSplitPercentage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.splits[agentID]
}
