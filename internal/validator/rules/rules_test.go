package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEvaluateUnknownTagPassesThrough(t *testing.T) {
	e, err := NewEngine("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	allowed, err := e.Evaluate(context.Background(), "no-such-rule", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !allowed {
		t.Error("expected an unmatched tag to pass through as allowed")
	}
}

func TestEvaluateLoadedRule(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "deny-large.rego", `
package deny_large

default allow = false

allow if {
	input.size_bytes < 1024
}
`)

	e, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	allowed, err := e.Evaluate(context.Background(), "deny-large", map[string]interface{}{"size_bytes": 10})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !allowed {
		t.Error("expected a small module to be allowed")
	}

	allowed, err = e.Evaluate(context.Background(), "deny-large", map[string]interface{}{"size_bytes": 4096})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if allowed {
		t.Error("expected an oversized module to be rejected")
	}
}

func TestWatchReloadsOnNewRuleFile(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	stop, err := e.Watch()
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	writeRule(t, dir, "always-allow.rego", `
package always_allow

allow = true
`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.RLock()
		_, ok := e.evaluators["always-allow"]
		e.mu.RUnlock()
		if ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected the watcher to pick up the new rule file within the debounce window")
}

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}
}
