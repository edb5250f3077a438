package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/orchestrator"
	"github.com/caxtonio/agentcore/internal/validator"
)

func newDeployCommand() *cobra.Command {
	var name, policyName string

	cmd := &cobra.Command{
		Use:   "deploy <wasm-file>",
		Short: "Deploy a single WASM module as a new agent and print its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wasmBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if name == "" {
				name = agentNameFromPath(args[0])
			}
			agentName, err := domain.NewAgentName(name)
			if err != nil {
				return fmt.Errorf("agent name: %w", err)
			}

			cfg := loadConfig()
			a, err := buildApp(cfg, log.Logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			resources, err := domain.NewResourceRequirements(defaultMemoryLimit, defaultFuelLimit, false, 0)
			if err != nil {
				return fmt.Errorf("resource requirements: %w", err)
			}

			ctx := context.Background()
			status, err := a.orchestrator.DeployAgent(ctx, orchestrator.DeployAgentRequest{
				Name:       agentName,
				WasmBytes:  wasmBytes,
				PolicyName: policyName,
				Config:     domain.DeploymentConfig{Strategy: domain.DeploymentImmediate, ResourceRequirements: resources},
			})
			if err != nil {
				printJSON(map[string]interface{}{"error": err.Error(), "status": status})
				return err
			}
			status, err = a.orchestrator.StartAgent(ctx, status.Lifecycle.AgentID)
			if err != nil {
				printJSON(map[string]interface{}{"error": err.Error(), "status": status})
				return err
			}
			return printJSON(status)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "agent name (defaults to the file's basename)")
	cmd.Flags().StringVar(&policyName, "policy", defaultPolicyName, "security policy: strict, permissive, or testing")
	return cmd
}

func newReloadCommand() *cobra.Command {
	var strategy, policyName string

	cmd := &cobra.Command{
		Use:   "reload <base-wasm-file> <new-wasm-file>",
		Short: "Deploy base-wasm-file, then hot-reload it to new-wasm-file in one process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			newBytes, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}

			agentName, err := domain.NewAgentName(agentNameFromPath(args[0]))
			if err != nil {
				return fmt.Errorf("agent name: %w", err)
			}

			cfg := loadConfig()
			a, err := buildApp(cfg, log.Logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			resources, err := domain.NewResourceRequirements(defaultMemoryLimit, defaultFuelLimit, false, 0)
			if err != nil {
				return fmt.Errorf("resource requirements: %w", err)
			}

			ctx := context.Background()
			before, err := a.orchestrator.DeployAgent(ctx, orchestrator.DeployAgentRequest{
				Name:       agentName,
				WasmBytes:  baseBytes,
				PolicyName: policyName,
				Config:     domain.DeploymentConfig{Strategy: domain.DeploymentImmediate, ResourceRequirements: resources},
			})
			if err != nil {
				return fmt.Errorf("deploy base module: %w", err)
			}
			before, err = a.orchestrator.StartAgent(ctx, before.Lifecycle.AgentID)
			if err != nil {
				return fmt.Errorf("start base agent: %w", err)
			}

			reloadStrategy, err := parseHotReloadStrategy(strategy)
			if err != nil {
				return err
			}
			reloadResources := resources
			if reloadStrategy.RequiresIsolation() {
				reloadResources, err = domain.NewResourceRequirements(defaultMemoryLimit, defaultFuelLimit, true, 0)
				if err != nil {
					return fmt.Errorf("resource requirements: %w", err)
				}
			}

			after, err := a.orchestrator.HotReloadAgent(ctx, orchestrator.HotReloadAgentRequest{
				AgentID:   before.Lifecycle.AgentID,
				WasmBytes: newBytes,
				Config: domain.HotReloadConfig{
					Strategy:             reloadStrategy,
					WarmupDuration:       time.Second,
					ProgressiveRollout:   true,
					ResourceRequirements: reloadResources,
				},
			})
			if err != nil {
				printJSON(map[string]interface{}{"error": err.Error(), "before": before, "after": after})
				return err
			}
			return printJSON(map[string]interface{}{"before": before, "after": after})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "graceful", "graceful, immediate, parallel, or traffic_splitting")
	cmd.Flags().StringVar(&policyName, "policy", defaultPolicyName, "security policy: strict, permissive, or testing")
	return cmd
}

func parseHotReloadStrategy(s string) (domain.HotReloadStrategy, error) {
	switch domain.HotReloadStrategy(s) {
	case domain.HotReloadGraceful, domain.HotReloadImmediate, domain.HotReloadParallel, domain.HotReloadTrafficSplitting:
		return domain.HotReloadStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

func newValidateCommand() *cobra.Command {
	var policyName, rulesDir string

	cmd := &cobra.Command{
		Use:   "validate <wasm-file>",
		Short: "Validate a WASM module against a security policy, without deploying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wasmBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			v, err := validator.NewValidator(validator.Config{CustomRulesDir: rulesDir}, log.Logger)
			if err != nil {
				return fmt.Errorf("build validator: %w", err)
			}

			mod, err := v.ValidateModule(context.Background(), wasmBytes, policyName)
			if err != nil {
				printJSON(map[string]interface{}{"error": err.Error()})
				return err
			}
			return printJSON(mod.Validation)
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", defaultPolicyName, "security policy: strict, permissive, or testing")
	cmd.Flags().StringVar(&rulesDir, "rules-dir", "", "directory of *.rego custom validation rules")
	return cmd
}
