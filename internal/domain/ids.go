// Package domain holds the shared types every other package in this module
// builds on: identifiers, the agent state machine, configuration and result
// records, and the error taxonomy. Nothing here talks to a runtime, a
// network, or a disk.
package domain

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// AgentID identifies an agent. Stable across every version the agent ever
// runs.
type AgentID uuid.UUID

// NewAgentID generates a fresh random agent identifier.
func NewAgentID() AgentID {
	return AgentID(uuid.New())
}

// ParseAgentID validates and parses the textual UUID form.
func ParseAgentID(s string) (AgentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AgentID{}, fmt.Errorf("parse agent id: %w", err)
	}
	return AgentID(id), nil
}

func (id AgentID) String() string { return uuid.UUID(id).String() }

// AgentVersion identifies one deployed code instance of an agent. Distinct
// from VersionNumber, which orders versions within one agent.
type AgentVersion uuid.UUID

// NewAgentVersion generates a fresh random version identifier.
func NewAgentVersion() AgentVersion {
	return AgentVersion(uuid.New())
}

// ParseAgentVersion validates and parses the textual UUID form.
func ParseAgentVersion(s string) (AgentVersion, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AgentVersion{}, fmt.Errorf("parse agent version: %w", err)
	}
	return AgentVersion(id), nil
}

func (v AgentVersion) String() string { return uuid.UUID(v).String() }

// IsZero reports whether v is the zero-value version (never assigned).
func (v AgentVersion) IsZero() bool { return v == AgentVersion{} }

// VersionNumber orders versions within a single agent. Monotonically
// non-decreasing across successful hot reloads.
type VersionNumber uint64

// DeploymentID identifies one deployment operation.
type DeploymentID uuid.UUID

// NewDeploymentID generates a fresh random deployment identifier.
func NewDeploymentID() DeploymentID { return DeploymentID(uuid.New()) }

func (id DeploymentID) String() string { return uuid.UUID(id).String() }

// ReloadID identifies one hot-reload operation.
type ReloadID uuid.UUID

// NewReloadID generates a fresh random reload identifier.
func NewReloadID() ReloadID { return ReloadID(uuid.New()) }

func (id ReloadID) String() string { return uuid.UUID(id).String() }

// agentNamePattern enforces the kebab-ish shape from spec.md §6: lowercase,
// starts and ends with an alphanumeric, hyphens allowed in the middle.
var agentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// AgentName is a validated, human-assigned agent label.
type AgentName string

// NewAgentName validates s against the kebab-ish naming rule: 1-255 chars,
// matches ^[a-z][a-z0-9-]*[a-z0-9]$, and never contains "--" (the regex
// alone permits consecutive hyphens).
func NewAgentName(s string) (AgentName, error) {
	if len(s) < 1 || len(s) > 255 {
		return "", fmt.Errorf("agent name must be 1-255 characters, got %d", len(s))
	}
	if len(s) == 1 {
		if !regexp.MustCompile(`^[a-z]$`).MatchString(s) {
			return "", fmt.Errorf("agent name %q: single character must be a lowercase letter", s)
		}
		return AgentName(s), nil
	}
	if !agentNamePattern.MatchString(s) {
		return "", fmt.Errorf("agent name %q: must match %s", s, agentNamePattern.String())
	}
	if containsConsecutiveHyphens(s) {
		return "", fmt.Errorf("agent name %q: consecutive hyphens not allowed", s)
	}
	return AgentName(s), nil
}

func containsConsecutiveHyphens(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] == '-' && s[i-1] == '-' {
			return true
		}
	}
	return false
}

func (n AgentName) String() string { return string(n) }
