package validator

import (
	"context"
	"fmt"

	"github.com/caxtonio/agentcore/internal/domain"
)

// checkSecurity enforces a WasmSecurityPolicy against a parsed module
// (spec.md §4.4 "security" step): allowed imports, required exports,
// resource ceilings, feature flags, and any Custom(tag) rules.
func (v *Validator) checkSecurity(ctx context.Context, mod *domain.WasmModule, policy domain.WasmSecurityPolicy) []domain.ValidationFailure {
	var failures []domain.ValidationFailure

	if policy.AllowedImports != nil {
		allowed := make(map[string]bool, len(policy.AllowedImports))
		for _, a := range policy.AllowedImports {
			allowed[a] = true
		}
		for _, imp := range mod.Imports {
			if !allowed[imp.Name] {
				failures = append(failures, domain.ValidationFailure{
					Reason: domain.FailureUnauthorizedImport,
					Detail: fmt.Sprintf("import %q is not in the allowed list for policy %q", imp.Name, policy.Name),
				})
			}
		}
	}

	if len(policy.RequiredExports) > 0 {
		present := make(map[string]bool, len(mod.Exports))
		for _, exp := range mod.Exports {
			present[exp.Name] = true
		}
		for _, required := range policy.RequiredExports {
			if !present[required] {
				failures = append(failures, domain.ValidationFailure{
					Reason: domain.FailureMissingRequiredExport,
					Detail: fmt.Sprintf("required export %q is missing", required),
				})
			}
		}
	}

	if policy.MaxMemoryPages > 0 && mod.MemoryPages > policy.MaxMemoryPages {
		failures = append(failures, domain.ValidationFailure{
			Reason: domain.FailureResourceLimitExceeded,
			Detail: fmt.Sprintf("module requests %d memory pages, policy %q caps at %d", mod.MemoryPages, policy.Name, policy.MaxMemoryPages),
		})
	}
	if policy.MaxTableElements > 0 && mod.TableElements > policy.MaxTableElements {
		failures = append(failures, domain.ValidationFailure{
			Reason: domain.FailureResourceLimitExceeded,
			Detail: fmt.Sprintf("module requests %d table elements, policy %q caps at %d", mod.TableElements, policy.Name, policy.MaxTableElements),
		})
	}

	for _, feature := range mod.FeaturesUsed {
		switch feature {
		case "simd":
			if !policy.AllowSIMD {
				failures = append(failures, domain.ValidationFailure{Reason: domain.FailureSecurityViolation, Detail: "module uses SIMD, forbidden by policy " + policy.Name})
			}
		case "threads":
			if !policy.AllowThreads {
				failures = append(failures, domain.ValidationFailure{Reason: domain.FailureSecurityViolation, Detail: "module uses threads, forbidden by policy " + policy.Name})
			}
		case "bulk-memory":
			if !policy.AllowBulkMemory {
				failures = append(failures, domain.ValidationFailure{Reason: domain.FailureSecurityViolation, Detail: "module uses bulk memory operations, forbidden by policy " + policy.Name})
			}
		}
	}

	for _, rule := range policy.CustomRules {
		input := map[string]interface{}{
			"content_hash":   mod.ContentHash,
			"size_bytes":     mod.SizeBytes,
			"memory_pages":   mod.MemoryPages,
			"table_elements": mod.TableElements,
			"features_used":  mod.FeaturesUsed,
			"imports":        importNames(mod.Imports),
			"exports":        exportNames(mod.Exports),
		}
		allowed, err := v.custom.Evaluate(ctx, rule.Tag, input)
		if err != nil {
			failures = append(failures, domain.ValidationFailure{
				Reason: domain.FailureSecurityViolation,
				Detail: fmt.Sprintf("custom rule %q failed to evaluate: %v", rule.Tag, err),
			})
			continue
		}
		if !allowed {
			failures = append(failures, domain.ValidationFailure{
				Reason: domain.FailureSecurityViolation,
				Detail: fmt.Sprintf("custom rule %q (%s) rejected the module", rule.Tag, rule.Description),
			})
		}
	}

	return failures
}

func importNames(fs []domain.FunctionSignature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func exportNames(fs []domain.FunctionSignature) []string { return importNames(fs) }
