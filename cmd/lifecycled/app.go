package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caxtonio/agentcore/internal/deployment"
	"github.com/caxtonio/agentcore/internal/hotreload"
	"github.com/caxtonio/agentcore/internal/orchestrator"
	"github.com/caxtonio/agentcore/internal/timeutil"
	"github.com/caxtonio/agentcore/internal/validator"
	wasmtimehost "github.com/caxtonio/agentcore/internal/wasmhost/wasmtime"
	"github.com/rs/zerolog"
)

// app bundles every collaborator the Lifecycle Orchestrator needs, built
// fresh for each CLI invocation (spec.md's library is host-agnostic; this
// wiring is lifecycled's own).
type app struct {
	orchestrator *orchestrator.Orchestrator
	validator    *validator.Validator
	registry     *prometheus.Registry
}

func buildApp(cfg config, log zerolog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()

	v, err := validator.NewValidator(validator.Config{
		CustomRulesDir: cfg.CustomRulesDir,
		Registerer:     registry,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	host := wasmtimehost.NewHost()
	resources := wasmtimehost.NewResourceAllocator(cfg.MemoryBudgetBytes)
	instances := wasmtimehost.NewInstanceManager(host)
	runtime := wasmtimehost.NewRuntimeManager(host)
	router := wasmtimehost.NewTrafficRouter()

	deployer, err := deployment.NewEngine(resources, instances, deployment.Config{
		MaxConcurrent: cfg.MaxConcurrentDeploys,
		Registerer:    registry,
	})
	if err != nil {
		return nil, fmt.Errorf("build deployment engine: %w", err)
	}
	reloader, err := hotreload.NewEngine(runtime, router, timeutil.NewProduction(), hotreload.Config{
		MaxConcurrentReloads: cfg.MaxConcurrentReloads,
		PreserveVersions:     cfg.PreserveVersions,
		Registerer:           registry,
	})
	if err != nil {
		return nil, fmt.Errorf("build hot-reload engine: %w", err)
	}

	orch := orchestrator.New(v, deployer, reloader, timeutil.NewProduction(), orchestrator.Config{
		DeployTimeout: cfg.DeployTimeout,
		ReloadTimeout: cfg.ReloadTimeout,
		StopTimeout:   cfg.StopTimeout,
	})

	return &app{orchestrator: orch, validator: v, registry: registry}, nil
}
