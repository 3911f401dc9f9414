package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"steward/internal/audit"
	"steward/internal/config"
	"steward/internal/policy"
)

// InitOptions holds init command options.
type InitOptions struct {
	Force bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize steward configuration",
		Long:  "Create the steward configuration directory, default config, policy, and audit database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit performs first-time setup.
func RunInit(opts *InitOptions) error {
	configDir, err := config.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("get config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	dirs := []string{
		configDir,
		filepath.Join(configDir, "logs"),
		filepath.Join(configDir, "hooks"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	defaultConfig := map[string]any{
		"log": map[string]any{
			"level":  "info",
			"format": "console",
		},
		"storage": map[string]any{
			"driver": "sqlite",
			"path":   filepath.Join(configDir, "audit.db"),
		},
		"policy": map[string]any{
			"path":  filepath.Join(configDir, "policy.yaml"),
			"watch": true,
		},
		"hooks": map[string]any{
			"path": filepath.Join(configDir, "hooks.yaml"),
		},
		"approval": map[string]any{
			"timeout":     "5m",
			"max_pending": 32,
		},
	}

	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Default policy with the built-in dangerous-operation rules.
	policyPath := filepath.Join(configDir, "policy.yaml")
	if _, err := os.Stat(policyPath); os.IsNotExist(err) || opts.Force {
		if err := policy.SaveConfig(policy.DefaultConfig(), policyPath); err != nil {
			return fmt.Errorf("write policy: %w", err)
		}
	}

	// Empty hook configuration so `steward hooks list` works out of the box.
	hooksPath := filepath.Join(configDir, "hooks.yaml")
	if _, err := os.Stat(hooksPath); os.IsNotExist(err) || opts.Force {
		if err := os.WriteFile(hooksPath, []byte("hooks: []\n"), 0644); err != nil {
			return fmt.Errorf("write hooks config: %w", err)
		}
	}

	auditPath := filepath.Join(configDir, "audit.db")
	store, err := audit.Open(auditPath)
	if err != nil {
		return fmt.Errorf("initialize audit database: %w", err)
	}
	store.Close()

	fmt.Printf("Initialized steward at %s\n", configDir)
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Policy: %s\n", policyPath)
	fmt.Printf("  Hooks:  %s\n", hooksPath)
	fmt.Printf("  Audit:  %s\n", auditPath)

	return nil
}
