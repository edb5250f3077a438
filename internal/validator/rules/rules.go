// Package rules implements the Module Validator's Custom(tag) extension
// point (spec.md §3): named Rego rule files, hot-reloaded from a directory,
// each evaluated against a module's metadata as OPA input. Grounded on the
// teacher's internal/policy package — OPALoader/OPAEvaluator's
// store-path-and-eval-at-runtime shape, and FileWatcher's debounced
// fsnotify directory watch.
package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

// Evaluator evaluates one named Rego rule against an input document,
// querying "data.allow".
type Evaluator struct {
	tag  string
	path string
}

func newEvaluator(tag, path string) *Evaluator {
	return &Evaluator{tag: tag, path: path}
}

// Eval reports whether the rule allows the given input.
func (e *Evaluator) Eval(ctx context.Context, input map[string]interface{}) (bool, error) {
	r := rego.New(
		rego.Query("data.allow"),
		rego.Load([]string{e.path}, nil),
		rego.Input(input),
	)
	rs, err := r.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval rule %s: %w", e.tag, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

// Engine holds every loaded custom rule, keyed by tag (the CustomRule.Tag
// a WasmSecurityPolicy references), reloadable from disk without
// restarting the validator.
type Engine struct {
	mu         sync.RWMutex
	evaluators map[string]*Evaluator
	dir        string
	log        zerolog.Logger
}

// NewEngine loads every *.rego file in dir as a named rule, keyed by its
// filename without extension. An empty or missing dir yields an Engine
// with no rules — CustomMetric triggers and Custom(tag) policy rules
// simply never match, per spec.md's "no-op unless a matching rule file is
// loaded" contract.
func NewEngine(dir string, log zerolog.Logger) (*Engine, error) {
	e := &Engine{evaluators: make(map[string]*Evaluator), dir: dir, log: log}
	if dir == "" {
		return e, nil
	}
	if err := e.reload(); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("no custom validation rules loaded")
	}
	return e, nil
}

func (e *Engine) reload() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("read rules directory: %w", err)
	}

	evaluators := make(map[string]*Evaluator)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".rego") {
			continue
		}
		tag := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		evaluators[tag] = newEvaluator(tag, filepath.Join(e.dir, entry.Name()))
	}

	e.mu.Lock()
	e.evaluators = evaluators
	e.mu.Unlock()
	return nil
}

// Evaluate runs the named custom rule. A missing tag is treated as
// pass-through allow: spec.md's Custom(tag) extension point is a no-op
// until a matching rule file exists.
func (e *Engine) Evaluate(ctx context.Context, tag string, input map[string]interface{}) (bool, error) {
	e.mu.RLock()
	ev, ok := e.evaluators[tag]
	e.mu.RUnlock()
	if !ok {
		return true, nil
	}
	return ev.Eval(ctx, input)
}

// Watch starts a debounced fsnotify watch over the rules directory,
// reloading on any .rego create/write. Returns a stop function.
func (e *Engine) Watch() (stop func(), err error) {
	if e.dir == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(e.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch rules directory: %w", err)
	}

	done := make(chan struct{})
	debounce := time.NewTimer(0)
	<-debounce.C

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldHandle(event) {
					debounce.Reset(500 * time.Millisecond)
					go func() {
						<-debounce.C
						if err := e.reload(); err != nil {
							e.log.Warn().Err(err).Msg("failed to reload custom validation rules")
						}
					}()
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.log.Error().Err(werr).Msg("rules watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(event.Name), ".rego")
}
