package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// HookFileConfig is the on-disk hook configuration.
type HookFileConfig struct {
	Hooks []HookEntry `yaml:"hooks"`
}

// HookEntry describes a single script hook registration.
type HookEntry struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Script      string `yaml:"script"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// LoadFromFile reads a YAML hook configuration and registers its script
// handlers with the manager. Script paths are resolved relative to the
// configuration file. Returns the number of handlers registered.
func (m *Manager) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read hook config: %w", err)
	}

	var cfg HookFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("failed to parse hook config %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	registered := 0

	for i, entry := range cfg.Hooks {
		if entry.ID == "" {
			return registered, fmt.Errorf("hook entry %d: id is required", i)
		}

		hookType := HookType(entry.Type)
		if !IsValidHookType(hookType) {
			return registered, fmt.Errorf("hook %s: %w: %s", entry.ID, ErrHookTypeInvalid, entry.Type)
		}

		if entry.Script == "" {
			return registered, fmt.Errorf("hook %s: script is required", entry.ID)
		}

		scriptPath := entry.Script
		if !filepath.IsAbs(scriptPath) {
			scriptPath = filepath.Join(baseDir, scriptPath)
		}
		if _, err := os.Stat(scriptPath); err != nil {
			return registered, fmt.Errorf("hook %s: script not found: %w", entry.ID, err)
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}

		handler := &Handler{
			ID:          entry.ID,
			Priority:    entry.Priority,
			Source:      path,
			Description: entry.Description,
			Enabled:     enabled,
			ScriptPath:  scriptPath,
		}

		if err := m.Register(hookType, handler); err != nil {
			return registered, fmt.Errorf("hook %s: %w", entry.ID, err)
		}

		log.Debug().
			Str("handler_id", entry.ID).
			Str("hook_type", entry.Type).
			Str("script", scriptPath).
			Msg("registered script hook")
		registered++
	}

	return registered, nil
}
