package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"steward/internal/audit"
	"steward/internal/config"
	"steward/pkg/logger"
)

// CLIContext carries shared state between commands.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	auditOnce sync.Once
	auditErr  error
	audit     *audit.Store
	auditPath string
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, auditPath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		auditPath:  auditPath,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetAudit opens the audit store lazily.
func (c *CLIContext) GetAudit() (*audit.Store, error) {
	c.auditOnce.Do(func() {
		c.audit, c.auditErr = audit.Open(c.auditPath)
	})
	return c.audit, c.auditErr
}

// AuditPath returns the audit database path.
func (c *CLIContext) AuditPath() string {
	return c.auditPath
}

// Close releases held resources.
func (c *CLIContext) Close() error {
	if c.audit != nil {
		return c.audit.Close()
	}
	return nil
}

// Log returns the logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
