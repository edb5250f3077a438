package deployment_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxtonio/agentcore/internal/deployment"
	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/wasmhost/fake"
)

func testResources(t *testing.T) domain.ResourceRequirements {
	t.Helper()
	r, err := domain.NewResourceRequirements(domain.MinMemoryLimitBytes, domain.MinFuelLimit, false, 0)
	if err != nil {
		t.Fatalf("NewResourceRequirements: %v", err)
	}
	return r
}

func deployRequest(t *testing.T, wasmBytes []byte) domain.DeploymentRequest {
	t.Helper()
	return domain.DeploymentRequest{
		DeploymentID:  domain.NewDeploymentID(),
		AgentID:       domain.NewAgentID(),
		Version:       domain.NewAgentVersion(),
		VersionNumber: 1,
		Config: domain.DeploymentConfig{
			Strategy:             domain.DeploymentImmediate,
			ResourceRequirements: testResources(t),
			Timeout:              5 * time.Second,
		},
		WasmBytes: wasmBytes,
	}
}

func newTestEngine(t *testing.T, cfg deployment.Config) *deployment.Engine {
	t.Helper()
	engine, err := deployment.NewEngine(fake.NewResources(), fake.NewInstances(), cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func newTestEngineWithCollaborators(t *testing.T, resources *fake.Resources, instances *fake.Instances, cfg deployment.Config) *deployment.Engine {
	t.Helper()
	engine, err := deployment.NewEngine(resources, instances, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestDeployHappyPath(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{})

	req := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})
	result, err := engine.Deploy(context.Background(), req)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if result.Status != domain.DeploymentCompleted {
		t.Errorf("expected DeploymentCompleted, got %s", result.Status)
	}
	if !instances.IsRunning(req.AgentID) {
		t.Error("expected instance to be running after a successful deploy")
	}
}

func TestDeployRejectsEmptyModule(t *testing.T) {
	engine := newTestEngine(t, deployment.Config{})
	req := deployRequest(t, nil)

	result, err := engine.Deploy(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for empty wasm module")
	}
	if result.Status != domain.DeploymentFailed {
		t.Errorf("expected DeploymentFailed, got %s", result.Status)
	}
}

func TestDeployDeallocatesOnInstanceFailure(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{})

	req := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})
	instances.FailDeploy = map[domain.AgentID]bool{req.AgentID: true}

	if _, err := engine.Deploy(context.Background(), req); err == nil {
		t.Fatal("expected deploy error")
	}

	var deallocated bool
	for _, c := range resources.Calls {
		if c == "deallocate:"+req.AgentID.String() {
			deallocated = true
		}
	}
	if !deallocated {
		t.Error("expected resources to be deallocated after instance deploy failure")
	}
}

func TestDeployDeallocatesOnHealthCheckFailure(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{})

	req := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})
	instances.FailHealth = map[domain.AgentID]bool{req.AgentID: true}

	result, err := engine.Deploy(context.Background(), req)
	if err == nil {
		t.Fatal("expected deploy error on failed health check")
	}
	if result.Metrics.InstancesFailed != 1 {
		t.Errorf("expected InstancesFailed=1, got %d", result.Metrics.InstancesFailed)
	}
	var deallocated bool
	for _, c := range resources.Calls {
		if c == "deallocate:"+req.AgentID.String() {
			deallocated = true
		}
	}
	if !deallocated {
		t.Error("expected resources to be deallocated after a failed health check")
	}
}

func TestDeployFailsWhenAllocationDenied(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{})

	req := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})
	resources.FailAllocate = map[domain.AgentID]bool{req.AgentID: true}

	_, err := engine.Deploy(context.Background(), req)
	if err == nil {
		t.Fatal("expected error when resource allocation is denied")
	}
	if instances.IsRunning(req.AgentID) {
		t.Error("instance must never be deployed when allocation fails")
	}
}

func TestRollbackDeploymentIsIdempotent(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{})

	agentID := domain.NewAgentID()
	if err := engine.RollbackDeployment(context.Background(), agentID); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	if err := engine.RollbackDeployment(context.Background(), agentID); err != nil {
		t.Fatalf("second rollback (idempotent) should not error: %v", err)
	}
}

func TestCancelDeploymentOnUnknownIDIsNoop(t *testing.T) {
	engine := newTestEngine(t, deployment.Config{})
	if err := engine.CancelDeployment(domain.NewDeploymentID()); err != nil {
		t.Errorf("cancelling an unknown deployment id should be a no-op, got %v", err)
	}
}

func TestDeployRespectsMaxConcurrent(t *testing.T) {
	resources := fake.NewResources()
	instances := fake.NewInstances()
	engine := newTestEngineWithCollaborators(t, resources, instances, deployment.Config{MaxConcurrent: 1})

	req1 := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})
	req2 := deployRequest(t, []byte{0x00, 0x61, 0x73, 0x6d})

	if _, err := engine.Deploy(context.Background(), req1); err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	if _, err := engine.Deploy(context.Background(), req2); err != nil {
		t.Fatalf("second deploy (after first released its slot): %v", err)
	}
}
