package validator_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/caxtonio/agentcore/internal/domain"
	"github.com/caxtonio/agentcore/internal/validator"
)

// minimalModule is the smallest well-formed WASM binary: just the magic
// number and version, no imports/exports/memory.
var minimalModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestValidator(t *testing.T) *validator.Validator {
	t.Helper()
	v, err := validator.NewValidator(validator.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidateModuleRejectsEmptyBytes(t *testing.T) {
	v := newTestValidator(t)
	_, err := v.ValidateModule(context.Background(), nil, "strict")
	if err == nil {
		t.Fatal("expected an error for an empty module")
	}
	var verr *domain.WasmValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("expected *domain.WasmValidationError, got %T", err)
	}
	if verr.Kind != domain.ValidationEmptyModule {
		t.Errorf("expected ValidationEmptyModule, got %s", verr.Kind)
	}
}

func TestValidateModuleRejectsOversizedModule(t *testing.T) {
	v := newTestValidator(t)
	oversized := make([]byte, domain.MaxModuleSizeBytes+1)
	_, err := v.ValidateModule(context.Background(), oversized, "strict")
	if err == nil {
		t.Fatal("expected an error for a module over the size ceiling")
	}
	var verr *domain.WasmValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("expected *domain.WasmValidationError, got %T", err)
	}
	if verr.Kind != domain.ValidationModuleTooLarge {
		t.Errorf("expected ValidationModuleTooLarge, got %s", verr.Kind)
	}
}

func TestValidateModuleStrictRejectsMissingRequiredExports(t *testing.T) {
	v := newTestValidator(t)
	mod, err := v.ValidateModule(context.Background(), minimalModule, "strict")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if mod.Validation.Verdict != domain.VerdictInvalid {
		t.Fatalf("expected VerdictInvalid under the strict policy, got %s", mod.Validation.Verdict)
	}
	var sawMissingExport bool
	for _, f := range mod.Validation.Failures {
		if f.Reason == domain.FailureMissingRequiredExport {
			sawMissingExport = true
		}
	}
	if !sawMissingExport {
		t.Error("expected a FailureMissingRequiredExport failure")
	}
}

func TestValidateModuleTestingPolicyAcceptsMinimalModule(t *testing.T) {
	v := newTestValidator(t)
	mod, err := v.ValidateModule(context.Background(), minimalModule, "testing")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if mod.Validation.Verdict == domain.VerdictInvalid {
		t.Fatalf("expected the testing policy to accept a minimal module, got failures: %+v", mod.Validation.Failures)
	}
	if mod.AppliedPolicy != "testing" {
		t.Errorf("expected AppliedPolicy=testing, got %s", mod.AppliedPolicy)
	}
}

func TestValidateModuleUnknownPolicyFallsBackToStrict(t *testing.T) {
	v := newTestValidator(t)
	mod, err := v.ValidateModule(context.Background(), minimalModule, "does-not-exist")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if mod.AppliedPolicy != "strict" {
		t.Errorf("expected fallback to the strict policy, got %s", mod.AppliedPolicy)
	}
}

func TestValidateModuleContentHashIsDeterministic(t *testing.T) {
	v := newTestValidator(t)
	first, err := v.ValidateModule(context.Background(), minimalModule, "testing")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	second, err := v.ValidateModule(context.Background(), minimalModule, "testing")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if first.ContentHash != second.ContentHash {
		t.Errorf("expected the same module to hash identically across calls: %s != %s", first.ContentHash, second.ContentHash)
	}
}

func TestStatsAccumulateAcrossValidations(t *testing.T) {
	v := newTestValidator(t)
	if _, err := v.ValidateModule(context.Background(), minimalModule, "testing"); err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if _, err := v.ValidateModule(context.Background(), minimalModule, "strict"); err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}

	snap := v.Stats()
	if snap.Total != 2 {
		t.Errorf("expected Total=2, got %d", snap.Total)
	}
	if snap.Valid != 1 {
		t.Errorf("expected Valid=1 (testing policy pass), got %d", snap.Valid)
	}
	if snap.Invalid != 1 {
		t.Errorf("expected Invalid=1 (strict policy fail), got %d", snap.Invalid)
	}
}

func TestRegisterPolicyOverridesBuiltin(t *testing.T) {
	v := newTestValidator(t)
	v.RegisterPolicy(domain.WasmSecurityPolicy{Name: "strict", RequiredExports: nil})

	mod, err := v.ValidateModule(context.Background(), minimalModule, "strict")
	if err != nil {
		t.Fatalf("ValidateModule: %v", err)
	}
	if mod.Validation.Verdict == domain.VerdictInvalid {
		t.Errorf("expected the overridden strict policy (no required exports) to accept the module, got failures: %+v", mod.Validation.Failures)
	}
}

func asValidationError(err error, target **domain.WasmValidationError) bool {
	verr, ok := err.(*domain.WasmValidationError)
	if !ok {
		return false
	}
	*target = verr
	return true
}
