package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caxtonio/agentcore/cmd/lifecycled/auditlog"
)

// status and list read from the audit log rather than a live
// orchestrator: lifecycled has no admin API and no persistent daemon
// state (spec.md's non-goals), so the audit log — when AUDIT_DB_PATH is
// configured on the serve process — is the only state that survives
// across separate CLI invocations.

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent-id>",
		Short: "Print every recorded lifecycle event for one agent, from the audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := auditlog.Open(cfg.AuditDBPath)
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer store.Close()

			events, err := store.ForAgent(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("query audit log: %w", err)
			}
			return printJSON(events)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every recorded lifecycle event across all agents, from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := auditlog.Open(cfg.AuditDBPath)
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer store.Close()

			events, err := store.All(context.Background())
			if err != nil {
				return fmt.Errorf("query audit log: %w", err)
			}
			return printJSON(events)
		},
	}
}
