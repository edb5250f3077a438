package validator

import (
	"fmt"

	"github.com/caxtonio/agentcore/internal/domain"
)

// performanceWarningFunctionCeiling is the function-count threshold past
// which a module earns WarningLargeFunctionCount (spec.md §4.4
// "performance" step — soft, never blocks deployment).
const performanceWarningFunctionCeiling = 200

// performanceWarnings evaluates the non-fatal heuristics from spec.md §4.4.
func performanceWarnings(mod *domain.WasmModule) []domain.ValidationWarning {
	var warnings []domain.ValidationWarning

	if len(mod.Functions) > performanceWarningFunctionCeiling {
		warnings = append(warnings, domain.ValidationWarning{
			Kind:   domain.WarningLargeFunctionCount,
			Detail: fmt.Sprintf("module exports %d functions, exceeding the %d soft ceiling", len(mod.Functions), performanceWarningFunctionCeiling),
		})
	}

	if mod.MemoryPages > 0 && mod.MemoryPages < 2 {
		warnings = append(warnings, domain.ValidationWarning{
			Kind:   domain.WarningPerformanceWarning,
			Detail: "module requests fewer than 2 memory pages, likely to grow at runtime",
		})
	}

	for _, f := range mod.FeaturesUsed {
		if f == "threads" {
			warnings = append(warnings, domain.ValidationWarning{
				Kind:   domain.WarningCompatibilityIssue,
				Detail: "module uses threads, not supported by every host runtime",
			})
		}
	}

	return warnings
}
