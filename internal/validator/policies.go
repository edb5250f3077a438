package validator

import "github.com/caxtonio/agentcore/internal/domain"

// builtinPolicies returns the three named policies spec.md §3 requires:
// strict, permissive, and testing.
func builtinPolicies() map[string]domain.WasmSecurityPolicy {
	return map[string]domain.WasmSecurityPolicy{
		"strict": {
			Name:                  "strict",
			AllowedImports:        []string{"env.log", "env.get_env"},
			RequiredExports:       []string{"allocate", "evaluate", "memory"},
			ForbiddenInstructions: []string{},
			MaxMemoryPages:        16,  // 1 MiB
			MaxTableElements:      64,
			AllowSIMD:             false,
			AllowThreads:          false,
			AllowBulkMemory:       false,
		},
		"permissive": {
			Name:              "permissive",
			AllowedImports:    nil, // nil = permit all, per domain.WasmSecurityPolicy
			RequiredExports:   []string{"memory"},
			MaxMemoryPages:    256, // 16 MiB
			MaxTableElements:  4096,
			AllowSIMD:         true,
			AllowThreads:      false,
			AllowBulkMemory:   true,
		},
		"testing": {
			Name:              "testing",
			AllowedImports:    nil,
			RequiredExports:   nil,
			MaxMemoryPages:    1024, // 64 MiB
			MaxTableElements:  65536,
			AllowSIMD:         true,
			AllowThreads:      true,
			AllowBulkMemory:   true,
		},
	}
}
