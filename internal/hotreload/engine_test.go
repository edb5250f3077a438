package hotreload_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/hotreload"
	"github.com/caxtonio/agentcore/internal/timeutil"
	"github.com/caxtonio/agentcore/internal/wasmhost/fake"
)

func reloadRequest(t *testing.T, strategy domain.HotReloadStrategy, wasmBytes []byte) (domain.HotReloadRequest, domain.AgentID) {
	t.Helper()
	resources, err := domain.NewResourceRequirements(domain.MinMemoryLimitBytes, domain.MinFuelLimit, false, 0)
	if err != nil {
		t.Fatalf("NewResourceRequirements: %v", err)
	}
	agentID := domain.NewAgentID()
	return domain.HotReloadRequest{
		ReloadID:        domain.NewReloadID(),
		AgentID:         agentID,
		FromVersion:     domain.NewAgentVersion(),
		ToVersion:       domain.NewAgentVersion(),
		ToVersionNumber: 2,
		Config: domain.HotReloadConfig{
			Strategy:             strategy,
			RollbackCapability:   domain.DefaultRollbackCapability(),
			ResourceRequirements: resources,
			WarmupDuration:       10 * time.Millisecond,
			TrafficSplit:         domain.TrafficSplitPercentage(100),
		},
		WasmBytes: wasmBytes,
	}, agentID
}

func newTestEngine(cfg hotreload.Config) (*hotreload.Engine, *fake.Runtime, *fake.Router) {
	runtime := fake.NewRuntime()
	router := fake.NewRouter()
	clock := timeutil.NewTest(time.Now())
	engine, err := hotreload.NewEngine(runtime, router, clock, cfg)
	if err != nil {
		panic(err)
	}
	return engine, runtime, router
}

func TestReloadGracefulHappyPath(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})

	// The old version must already be running for a graceful drain+stop.
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	result, err := engine.Reload(context.Background(), req)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if result.Status != domain.ReloadCompleted {
		t.Errorf("expected ReloadCompleted, got %s", result.Status)
	}
	if !runtime.IsRunning(agentID, req.ToVersion) {
		t.Error("expected new version to be running")
	}
	if runtime.IsRunning(agentID, req.FromVersion) {
		t.Error("expected old version to be stopped after graceful drain")
	}
}

func TestReloadRejectsEmptyModule(t *testing.T) {
	engine, _, _ := newTestEngine(hotreload.Config{})
	req, _ := reloadRequest(t, domain.HotReloadGraceful, nil)

	result, err := engine.Reload(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for empty wasm module")
	}
	if result.Status != domain.ReloadFailed {
		t.Errorf("expected ReloadFailed, got %s", result.Status)
	}
}

func TestReloadGracefulRollsBackOnFailedHealthCheck(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)
	runtime.SetFailHealth(agentID, req.ToVersion, true)

	result, err := engine.Reload(context.Background(), req)
	if err == nil {
		t.Fatal("expected rollback error on failed health check")
	}
	if !domain.IsAutomaticRollback(err) {
		t.Errorf("expected an automatic-rollback error, got %v", err)
	}
	if result.Status != domain.ReloadRolledBack {
		t.Errorf("expected ReloadRolledBack, got %s", result.Status)
	}
	if runtime.IsRunning(agentID, req.ToVersion) {
		t.Error("failed new version should have been stopped")
	}
	if !runtime.IsRunning(agentID, req.FromVersion) {
		t.Error("old version must remain running after a graceful rollback")
	}
}

func TestReloadGracefulRollsBackOnMetricTrigger(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)
	runtime.SetMetrics(agentID, req.ToVersion, domain.ReloadMetrics{
		HealthCheckSuccessRate: 100,
		ErrorRatePercentage:    99,
	})

	_, err := engine.Reload(context.Background(), req)
	if !domain.IsAutomaticRollback(err) {
		t.Errorf("expected error-rate threshold to trigger an automatic rollback, got %v", err)
	}
	if runtime.IsRunning(agentID, req.ToVersion) {
		t.Error("new version should be stopped after a triggered rollback")
	}
}

// TestReloadImmediateDeployFailureLeavesOldVersionUntouched covers the
// reordered immediate pipeline: a failure before traffic has switched
// leaves the old version running and recoverable, so OldInstanceGone must
// be false and the old instance must still be up.
func TestReloadImmediateDeployFailureLeavesOldVersionUntouched(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadImmediate, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)
	runtime.SetFailDeploy(agentID, req.ToVersion, true)

	result, err := engine.Reload(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error when the new version fails to deploy")
	}
	hre, ok := err.(*domain.HotReloadError)
	if !ok {
		t.Fatalf("expected *domain.HotReloadError, got %T", err)
	}
	if hre.OldInstanceGone {
		t.Error("a deploy failure happens before traffic switches, so the old version is still up and recoverable")
	}
	if result.Status != domain.ReloadFailed {
		t.Errorf("expected ReloadFailed, got %s", result.Status)
	}
	if !runtime.IsRunning(agentID, req.FromVersion) {
		t.Error("old version must remain running when the new version never deployed")
	}
}

func TestReloadImmediateHappyPath(t *testing.T) {
	engine, runtime, router := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadImmediate, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	result, err := engine.Reload(context.Background(), req)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if result.Status != domain.ReloadCompleted {
		t.Errorf("expected ReloadCompleted, got %s", result.Status)
	}
	if runtime.IsRunning(agentID, req.FromVersion) {
		t.Error("immediate strategy must stop the old version once traffic has switched to the new one")
	}
	if router.Split(agentID) != domain.TrafficSplitPercentage(100) {
		t.Errorf("expected traffic cutover to the new version, got split %v", router.Split(agentID))
	}
}

// TestReloadImmediateFailedFinalHealthCheckIsObservationalOnly covers the
// reordered immediate pipeline (create new -> switch traffic -> stop old ->
// health-check): once traffic has moved and the old instance is gone,
// there is nothing left to roll back to, so a failing final health check
// must not turn into an AutomaticRollback error.
func TestReloadImmediateFailedFinalHealthCheckIsObservationalOnly(t *testing.T) {
	engine, runtime, router := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadImmediate, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)
	runtime.SetFailHealth(agentID, req.ToVersion, true)

	result, err := engine.Reload(context.Background(), req)
	if err != nil {
		t.Fatalf("a failing final health check must not fail the reload, got %v", err)
	}
	if result.Status != domain.ReloadCompleted {
		t.Errorf("expected ReloadCompleted despite the failed observational health check, got %s", result.Status)
	}
	if !runtime.IsRunning(agentID, req.ToVersion) {
		t.Error("new version must still be running: the failed health check is observational, not fatal")
	}
	if router.Split(agentID) != domain.TrafficSplitPercentage(100) {
		t.Errorf("traffic must already be fully cut over by the time the final health check runs, got split %v", router.Split(agentID))
	}
}

func TestReloadParallelHappyPath(t *testing.T) {
	engine, runtime, router := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadParallel, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	result, err := engine.Reload(context.Background(), req)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if result.Status != domain.ReloadCompleted {
		t.Errorf("expected ReloadCompleted, got %s", result.Status)
	}
	if runtime.IsRunning(agentID, req.FromVersion) {
		t.Error("old version should be stopped once the new one has proven itself")
	}
	if router.Split(agentID) != domain.TrafficSplitPercentage(100) {
		t.Errorf("expected parallel strategy to cut traffic over fully before stopping the old version, got split %v", router.Split(agentID))
	}
}

func TestReloadTrafficSplittingCutsOverFully(t *testing.T) {
	engine, runtime, router := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadTrafficSplitting, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	result, err := engine.Reload(context.Background(), req)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if result.Status != domain.ReloadCompleted {
		t.Errorf("expected ReloadCompleted, got %s", result.Status)
	}
	if router.Split(agentID) != domain.TrafficSplitPercentage(100) {
		t.Errorf("expected full cutover, got split %v", router.Split(agentID))
	}
}

func TestCancelReloadOnUnknownIDIsNoop(t *testing.T) {
	engine, _, _ := newTestEngine(hotreload.Config{})
	if err := engine.CancelReload(domain.NewReloadID()); err != nil {
		t.Errorf("cancelling an unknown reload id should be a no-op, got %v", err)
	}
}

func TestRollbackReloadOnUnknownIDIsNoop(t *testing.T) {
	engine, _, _ := newTestEngine(hotreload.Config{})
	if err := engine.RollbackReload(domain.NewReloadID()); err != nil {
		t.Errorf("requesting rollback for an unknown reload id should be a no-op, got %v", err)
	}
}

func TestReloadPreservesPriorVersionSnapshot(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	if _, err := engine.Reload(context.Background(), req); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	preserved := engine.PreservedVersions(agentID)
	if len(preserved) != 1 {
		t.Fatalf("expected 1 preserved version, got %d", len(preserved))
	}
	if preserved[0].Version != req.FromVersion {
		t.Errorf("expected the retiring version to be preserved, got %s", preserved[0].Version)
	}
}

func TestReloadPreservesRetiringVersionWasmBytes(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	req.FromVersionWasmBytes = []byte{0xde, 0xad, 0xbe, 0xef}
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	if _, err := engine.Reload(context.Background(), req); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	preserved := engine.PreservedVersions(agentID)
	if len(preserved) != 1 {
		t.Fatalf("expected 1 preserved version, got %d", len(preserved))
	}
	if string(preserved[0].WasmBytes) != string(req.FromVersionWasmBytes) {
		t.Errorf("expected the retiring version's bytes to be snapshotted, got %v", preserved[0].WasmBytes)
	}
}

func TestReloadGracefulPreservesAndRestoresState(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	req.Config.PreserveState = true
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)
	runtime.SetState(agentID, req.FromVersion, []byte("in-flight state"))

	if _, err := engine.Reload(context.Background(), req); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	calls := runtime.Calls
	sawPreserve, sawRestore := false, false
	for _, c := range calls {
		if c == "preserve:"+req.FromVersion.String() {
			sawPreserve = true
		}
		if c == "restore:"+req.ToVersion.String() {
			sawRestore = true
		}
	}
	if !sawPreserve {
		t.Error("expected PreserveState to be called against the old version")
	}
	if !sawRestore {
		t.Error("expected RestoreState to be called against the new version")
	}
}

func TestRollbackToVersionRecreatesPreservedVersion(t *testing.T) {
	engine, runtime, router := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	req.FromVersionWasmBytes = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	if _, err := engine.Reload(context.Background(), req); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	preserved := engine.PreservedVersions(agentID)
	if len(preserved) != 1 {
		t.Fatalf("expected 1 preserved version, got %d", len(preserved))
	}

	result, err := engine.RollbackToVersion(context.Background(), agentID, req.ToVersion, preserved[0].VersionNumber)
	if err != nil {
		t.Fatalf("RollbackToVersion: %v", err)
	}
	if result.Status != domain.ReloadRolledBack {
		t.Errorf("expected ReloadRolledBack, got %s", result.Status)
	}
	if runtime.IsRunning(agentID, req.ToVersion) {
		t.Error("the version being rolled back from must be stopped")
	}
	if !runtime.IsRunning(agentID, preserved[0].Version) {
		t.Error("the preserved version must be recreated")
	}
	if router.Split(agentID) != domain.TrafficSplitPercentage(100) {
		t.Errorf("expected traffic to switch fully back to the rolled-back version, got split %v", router.Split(agentID))
	}
}

func TestRollbackToVersionFailsForUnknownSnapshot(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	if _, err := engine.RollbackToVersion(context.Background(), agentID, req.FromVersion, domain.VersionNumber(999)); err == nil {
		t.Fatal("expected an error when no snapshot exists for the requested target version")
	}
}

func TestDropAgentClearsPreservedHistory(t *testing.T) {
	engine, runtime, _ := newTestEngine(hotreload.Config{})
	req, agentID := reloadRequest(t, domain.HotReloadGraceful, []byte{0x00, 0x61, 0x73, 0x6d})
	_ = runtime.DeployVersion(context.Background(), agentID, req.FromVersion, []byte{0x00}, req.Config.ResourceRequirements)

	if _, err := engine.Reload(context.Background(), req); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	engine.DropAgent(agentID)
	if preserved := engine.PreservedVersions(agentID); len(preserved) != 0 {
		t.Errorf("expected no preserved versions after DropAgent, got %d", len(preserved))
	}
}
