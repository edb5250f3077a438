package orchestrator

import (
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	EventStateTransition EventKind = "state_transition"
	EventDeploymentResult EventKind = "deployment_result"
	EventReloadResult     EventKind = "reload_result"
)

// Event is one notification pushed onto the orchestrator's broadcast
// channel (spec.md §4.1 "emits a stream of lifecycle events"). Grounded on
// the teacher's approval.Queue notify-channel pattern, generalized from a
// single event type to a tagged union over Kind.
type Event struct {
	Kind      EventKind
	AgentID   domain.AgentID
	At        time.Time
	Transition *domain.StateTransition   `json:"transition,omitempty"`
	Deployment *domain.DeploymentResult  `json:"deployment,omitempty"`
	Reload     *domain.HotReloadResult   `json:"reload,omitempty"`
}

// eventsBufferSize bounds the broadcast channel. A full channel means a
// slow or absent consumer; publish never blocks an orchestrator
// operation waiting for room (see publish in orchestrator.go).
const eventsBufferSize = 256
