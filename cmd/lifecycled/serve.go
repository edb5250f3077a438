package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/caxtonio/agentcore/cmd/lifecycled/auditlog"
	"github.com/caxtonio/agentcore/cmd/lifecycled/debugserver"
	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/orchestrator"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Deploy every *.wasm module in AGENTS_DIR and hot-reload on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()
			return runServe(ctx)
		},
	}
}

// runServe deploys every module found in cfg.AgentsDir, then watches that
// directory: a changed *.wasm file triggers a hot reload of the agent it
// was originally deployed from, a new *.wasm file is deployed fresh.
// Grounded on the teacher's policy.FileWatcher (fsnotify + 500ms debounce)
// generalized from reloading OPA policy files to hot-reloading agents.
func runServe(ctx context.Context) error {
	cfg := loadConfig()
	a, err := buildApp(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	var audit *auditlog.Store
	if cfg.AuditDBPath != "" {
		audit, err = auditlog.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
		go audit.Follow(ctx, a.orchestrator.Events(), func(err error) {
			log.Warn().Err(err).Msg("record lifecycle event")
		})
	}

	dbg := debugserver.New(debugserver.Config{Addr: cfg.DebugAddr}, a.orchestrator, a.registry, log.Logger)
	dbgErr := make(chan error, 1)
	go func() {
		if err := dbg.Start(); err != nil {
			dbgErr <- err
		}
	}()

	byPath := make(map[string]domain.AgentID)
	if err := os.MkdirAll(cfg.AgentsDir, 0755); err != nil {
		return fmt.Errorf("ensure agents dir: %w", err)
	}
	if err := deployAllWasm(ctx, a, cfg.AgentsDir, byPath); err != nil {
		log.Warn().Err(err).Msg("initial scan of agents directory")
	}

	stopWatch, err := watchAgentsDir(ctx, a, cfg.AgentsDir, byPath)
	if err != nil {
		return fmt.Errorf("watch agents directory: %w", err)
	}
	defer stopWatch()

	select {
	case err := <-dbgErr:
		return err
	case <-ctx.Done():
		return dbg.Shutdown(context.Background())
	}
}

func deployAllWasm(ctx context.Context, a *app, dir string, byPath map[string]domain.AgentID) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read agents dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := deployFromPath(ctx, a, path, byPath); err != nil {
			log.Error().Err(err).Str("path", path).Msg("deploy agent from agents directory")
		}
	}
	return nil
}

func deployFromPath(ctx context.Context, a *app, path string, byPath map[string]domain.AgentID) error {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	name, err := domain.NewAgentName(agentNameFromPath(path))
	if err != nil {
		return fmt.Errorf("derive agent name from %s: %w", path, err)
	}
	resources, err := domain.NewResourceRequirements(defaultMemoryLimit, defaultFuelLimit, false, 0)
	if err != nil {
		return fmt.Errorf("build resource requirements: %w", err)
	}
	status, err := a.orchestrator.DeployAgent(ctx, orchestrator.DeployAgentRequest{
		Name:       name,
		WasmBytes:  wasmBytes,
		PolicyName: defaultPolicyName,
		Config:     domain.DeploymentConfig{Strategy: domain.DeploymentImmediate, ResourceRequirements: resources},
	})
	if err != nil {
		return fmt.Errorf("deploy %s: %w", path, err)
	}
	status, err = a.orchestrator.StartAgent(ctx, status.Lifecycle.AgentID)
	if err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}
	byPath[path] = status.Lifecycle.AgentID
	log.Info().Str("path", path).Str("agent_id", status.Lifecycle.AgentID.String()).Msg("agent deployed")
	return nil
}

func watchAgentsDir(ctx context.Context, a *app, dir string, byPath map[string]domain.AgentID) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	debounce := time.NewTimer(0)
	<-debounce.C
	pending := make(map[string]bool)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".wasm") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending[event.Name] = true
				debounce.Reset(500 * time.Millisecond)
			case <-debounce.C:
				for path := range pending {
					handleAgentsDirChange(ctx, a, path, byPath)
				}
				pending = make(map[string]bool)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(werr).Msg("agents directory watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() { close(done); watcher.Close() }, nil
}

func handleAgentsDirChange(ctx context.Context, a *app, path string, byPath map[string]domain.AgentID) {
	agentID, known := byPath[path]
	if !known {
		if err := deployFromPath(ctx, a, path, byPath); err != nil {
			log.Error().Err(err).Str("path", path).Msg("deploy new agent from agents directory")
		}
		return
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("read changed module")
		return
	}
	resources, err := domain.NewResourceRequirements(defaultMemoryLimit, defaultFuelLimit, false, 0)
	if err != nil {
		log.Error().Err(err).Msg("build resource requirements")
		return
	}
	status, err := a.orchestrator.HotReloadAgent(ctx, orchestrator.HotReloadAgentRequest{
		AgentID:   agentID,
		WasmBytes: wasmBytes,
		Config: domain.HotReloadConfig{
			Strategy:             domain.HotReloadGraceful,
			WarmupDuration:       time.Second,
			ResourceRequirements: resources,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("hot reload agent from agents directory change")
		return
	}
	log.Info().Str("path", path).Str("agent_id", status.Lifecycle.AgentID.String()).Msg("agent hot-reloaded")
}

func agentNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".wasm")
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '-'
	}, base)
	return strings.Trim(base, "-")
}
