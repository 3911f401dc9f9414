package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default value for every configuration key.
func SetDefaults() {
	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Workspace
	viper.SetDefault("workspace.path", "")

	// Storage (audit database)
	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.path", "~/.steward/audit.db")

	// Policy
	viper.SetDefault("policy.path", "~/.steward/policy.yaml")
	viper.SetDefault("policy.watch", true)

	// Hooks
	viper.SetDefault("hooks.path", "~/.steward/hooks.yaml")

	// Approval
	viper.SetDefault("approval.timeout", 5*time.Minute)
	viper.SetDefault("approval.max_pending", 32)

	// Scheduler
	viper.SetDefault("scheduler.idle_timeout", 30*time.Minute)

	// JSVM (script hook runtime)
	viper.SetDefault("jsvm.enabled", true)
	viper.SetDefault("jsvm.pool_size", 5)
	viper.SetDefault("jsvm.idle_timeout", 5*time.Minute)
	viper.SetDefault("jsvm.acquire_timeout", 5*time.Second)
	viper.SetDefault("jsvm.timeout", 30*time.Second)
	viper.SetDefault("jsvm.memory_limit", "64MB")
	viper.SetDefault("jsvm.allowed_paths", []string{"~/.steward/", "/tmp"})
	viper.SetDefault("jsvm.http_allowlist", []string{})

	// Tools
	viper.SetDefault("tools.shell_timeout", 2*time.Minute)
	viper.SetDefault("tools.disabled", []string{})
}
