package domain

import "time"

// DeploymentConfig parameterizes a deployment (spec.md §3).
type DeploymentConfig struct {
	Strategy             DeploymentStrategy
	ResourceRequirements ResourceRequirements
	Timeout              time.Duration
}

// DeploymentRequest carries everything the Deployment Engine needs for one
// deployment.
type DeploymentRequest struct {
	DeploymentID  DeploymentID
	AgentID       AgentID
	Version       AgentVersion
	VersionNumber VersionNumber
	Config        DeploymentConfig
	WasmBytes     []byte
}

// DeploymentMetrics reports the outcome of one deployment attempt.
type DeploymentMetrics struct {
	InstancesDeployed      int
	InstancesFailed        int
	MemoryPeak             uint64
	FuelConsumed           uint64
	HealthCheckSuccessRate float64
	TotalDuration          time.Duration
}

// DeploymentResult is the outcome of a deploy_agent operation.
type DeploymentResult struct {
	DeploymentID DeploymentID
	AgentID      AgentID
	Status       DeploymentStatus
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorMessage *string
	Metrics      DeploymentMetrics
}

// ErrorMessageOrDefault returns ErrorMessage if set, else a generic
// fallback — used when recording a lifecycle failure reason that must
// never be empty.
func (r DeploymentResult) ErrorMessageOrDefault() string {
	if r.ErrorMessage != nil {
		return *r.ErrorMessage
	}
	return "deployment failed"
}
