package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Version   string          `mapstructure:"version" yaml:"version"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Policy    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	Hooks     HooksConfig     `mapstructure:"hooks" yaml:"hooks"`
	Approval  ApprovalConfig  `mapstructure:"approval" yaml:"approval"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	JSVM      JSVMConfig      `mapstructure:"jsvm" yaml:"jsvm"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// WorkspaceConfig points at the directory tool calls operate in. The path
// substitutes $WORKSPACE in policy path prefixes.
type WorkspaceConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// StorageConfig locates the audit database.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// PolicyConfig locates the tool policy file.
type PolicyConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Watch enables hot reload when the policy file changes on disk.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// HooksConfig locates the script hook configuration.
type HooksConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ApprovalConfig tunes the approval flow.
type ApprovalConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxPending int           `mapstructure:"max_pending" yaml:"max_pending"`
}

// GetTimeout returns the approval timeout, defaulting to 5 minutes.
func (c *ApprovalConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Minute
	}
	return c.Timeout
}

// SchedulerConfig tunes scheduler instances.
type SchedulerConfig struct {
	// IdleTimeout is how long an instance may sit without activity before
	// the owner may reap it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// JSVMConfig configures the JavaScript runtime used by script hooks.
type JSVMConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	PoolSize       int           `mapstructure:"pool_size" yaml:"pool_size"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MemoryLimit    string        `mapstructure:"memory_limit" yaml:"memory_limit"`
	AllowedPaths   []string      `mapstructure:"allowed_paths" yaml:"allowed_paths"`
	HTTPAllowlist  []string      `mapstructure:"http_allowlist" yaml:"http_allowlist"`
}

// ToolsConfig tunes the built-in tools.
type ToolsConfig struct {
	// ShellTimeout bounds a single shell invocation.
	ShellTimeout time.Duration `mapstructure:"shell_timeout" yaml:"shell_timeout"`
	// Disabled lists tool names that must not be registered.
	Disabled []string `mapstructure:"disabled" yaml:"disabled"`
}

// GetShellTimeout returns the shell timeout, defaulting to 2 minutes.
func (c *ToolsConfig) GetShellTimeout() time.Duration {
	if c.ShellTimeout <= 0 {
		return 2 * time.Minute
	}
	return c.ShellTimeout
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the configuration with precedence ENV > file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("STEWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a broken file is an error.
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the currently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns an arbitrary configuration value.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string configuration value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an integer configuration value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a boolean configuration value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set updates a configuration value and persists it when a config path
// was loaded.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the configuration back to its file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save assumes the caller holds mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	allSettings := viper.AllSettings()

	data, err := yaml.Marshal(allSettings)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes the given configuration to an explicit path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded state. Primarily for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig injects a configuration directly. Tests only.
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
