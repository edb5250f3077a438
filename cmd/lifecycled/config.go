package main

import (
	"os"
	"strconv"
	"time"
)

// config holds every environment-derived setting for lifecycled. Loaded
// once in main, per the teacher's cmd/sidecar getEnv/getEnvInt pattern.
type config struct {
	LogLevel string

	AgentsDir     string
	CustomRulesDir string
	AuditDBPath   string

	DebugAddr string

	MemoryBudgetBytes    uint64
	MaxConcurrentDeploys int64
	MaxConcurrentReloads int64
	PreserveVersions     int

	DeployTimeout time.Duration
	ReloadTimeout time.Duration
	StopTimeout   time.Duration
}

func loadConfig() config {
	return config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AgentsDir:            getEnv("AGENTS_DIR", "./agents"),
		CustomRulesDir:       getEnv("RULES_DIR", ""),
		AuditDBPath:          getEnv("AUDIT_DB_PATH", "./db/lifecycle-events.db"),
		DebugAddr:            getEnv("DEBUG_ADDR", ":9090"),
		MemoryBudgetBytes:    uint64(getEnvInt("MEMORY_BUDGET_BYTES", 0)),
		MaxConcurrentDeploys: int64(getEnvInt("MAX_CONCURRENT_DEPLOYS", 4)),
		MaxConcurrentReloads: int64(getEnvInt("MAX_CONCURRENT_RELOADS", 5)),
		PreserveVersions:     getEnvInt("PRESERVE_VERSIONS", 3),
		DeployTimeout:        time.Duration(getEnvInt("DEPLOY_TIMEOUT_SECONDS", 30)) * time.Second,
		ReloadTimeout:        time.Duration(getEnvInt("RELOAD_TIMEOUT_SECONDS", 60)) * time.Second,
		StopTimeout:          time.Duration(getEnvInt("STOP_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
