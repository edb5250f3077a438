package domain

import "time"

// FunctionSignature describes one function's type signature as extracted
// from the module.
type FunctionSignature struct {
	Name    string
	Params  []string
	Results []string
}

// WasmModule is the parsed metadata the Module Validator produces for one
// WASM binary (spec.md §3).
type WasmModule struct {
	ContentHash     string // hex, SHA-256 (64 chars) or SHA-512 (128 chars)
	SizeBytes       int
	Functions       []FunctionSignature
	Imports         []FunctionSignature
	Exports         []FunctionSignature
	MemoryPages     uint32
	TableElements   uint32
	FeaturesUsed    []string
	AppliedPolicy   string
	Validation      ValidationResult
	CreatedAt       time.Time
	Metadata        map[string]string
}

// WasmSecurityPolicy is a named ruleset restricting what a module may do
// (spec.md §3). The three built-ins are constructed in
// internal/validator/policies.go.
type WasmSecurityPolicy struct {
	Name                string
	AllowedImports      []string // nil = permit all; non-nil empty = permit none
	RequiredExports     []string
	ForbiddenInstructions []string
	MaxMemoryPages      uint32
	MaxTableElements    uint32
	AllowSIMD           bool
	AllowThreads        bool
	AllowBulkMemory     bool
	CustomRules         []CustomRule
}

// CustomRule is a named extension-point rule, surfaced verbatim to the
// custom-rule evaluator (internal/validator/rules), a no-op unless a rule
// file with a matching Tag is loaded.
type CustomRule struct {
	Tag         string
	Description string
}

// ValidationFailureReason enumerates the typed invalid-module reasons from
// spec.md §3.
type ValidationFailureReason string

const (
	FailureInvalidWasmFormat       ValidationFailureReason = "InvalidWasmFormat"
	FailureUnsupportedWasmVersion  ValidationFailureReason = "UnsupportedWasmVersion"
	FailureModuleTooLarge          ValidationFailureReason = "ModuleTooLarge"
	FailureTooManyFunctions        ValidationFailureReason = "TooManyFunctions"
	FailureTooManyImports          ValidationFailureReason = "TooManyImports"
	FailureTooManyExports          ValidationFailureReason = "TooManyExports"
	FailureUnauthorizedImport      ValidationFailureReason = "UnauthorizedImport"
	FailureMissingRequiredExport   ValidationFailureReason = "MissingRequiredExport"
	FailureSecurityViolation       ValidationFailureReason = "SecurityViolation"
	FailureResourceLimitExceeded   ValidationFailureReason = "ResourceLimitExceeded"
	FailureDependencyNotFound      ValidationFailureReason = "DependencyNotFound"
	FailureInvalidFunctionSignature ValidationFailureReason = "InvalidFunctionSignature"
)

// ValidationFailure is one typed invalid-module finding, with free-form
// detail for operator diagnosis.
type ValidationFailure struct {
	Reason ValidationFailureReason
	Detail string
}

// ValidationWarningKind enumerates the typed warning reasons from spec.md §3.
type ValidationWarningKind string

const (
	WarningUnusedFunction      ValidationWarningKind = "UnusedFunction"
	WarningLargeFunctionCount  ValidationWarningKind = "LargeFunctionCount"
	WarningDeprecatedFeature   ValidationWarningKind = "DeprecatedFeature"
	WarningPerformanceWarning  ValidationWarningKind = "PerformanceWarning"
	WarningCompatibilityIssue ValidationWarningKind = "CompatibilityIssue"
)

// ValidationWarning is one non-fatal finding.
type ValidationWarning struct {
	Kind   ValidationWarningKind
	Detail string
}

// ValidationVerdict is the coarse outcome of ValidationResult.
type ValidationVerdict string

const (
	VerdictValid   ValidationVerdict = "valid"
	VerdictWarning ValidationVerdict = "warning"
	VerdictInvalid ValidationVerdict = "invalid"
)

// ValidationResult is the sum-type outcome from spec.md §3: any failures
// make it Invalid; otherwise any warnings make it Warning; otherwise Valid.
type ValidationResult struct {
	Verdict  ValidationVerdict
	Failures []ValidationFailure
	Warnings []ValidationWarning
}

// ComposeValidationResult applies the compose rule from spec.md §4.4 step 6.
func ComposeValidationResult(failures []ValidationFailure, warnings []ValidationWarning) ValidationResult {
	switch {
	case len(failures) > 0:
		return ValidationResult{Verdict: VerdictInvalid, Failures: failures, Warnings: warnings}
	case len(warnings) > 0:
		return ValidationResult{Verdict: VerdictWarning, Warnings: warnings}
	default:
		return ValidationResult{Verdict: VerdictValid}
	}
}

// IsValid reports whether the module is deployable (Valid or Warning, never
// Invalid).
func (r ValidationResult) IsValid() bool { return r.Verdict != VerdictInvalid }
