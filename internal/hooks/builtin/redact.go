package builtin

import (
	"context"
	"regexp"
	"strings"

	"steward/internal/hooks"

	"github.com/rs/zerolog/log"
)

// RedactAction defines what to do when a pattern matches a tool argument.
type RedactAction string

const (
	// RedactActionMask replaces matched content before the tool runs.
	RedactActionMask RedactAction = "mask"
	// RedactActionBlock rejects the tool call.
	RedactActionBlock RedactAction = "block"
	// RedactActionWarn logs a warning but lets the call through.
	RedactActionWarn RedactAction = "warn"
)

// RedactRule defines a single redaction rule applied to tool arguments.
type RedactRule struct {
	// Name is a descriptive name for the rule.
	Name string
	// Pattern is the regex pattern to match.
	Pattern string
	// Action is what to do when the pattern matches.
	Action RedactAction
	// Replacement is used when Action is RedactActionMask (default: "***").
	Replacement string
	// compiled is the compiled regex pattern.
	compiled *regexp.Regexp
}

// RedactConfig configures the redaction hook.
type RedactConfig struct {
	// Rules is the list of redaction rules.
	Rules []RedactRule
	// BlockReason is the reason reported when a rule blocks (optional).
	BlockReason string
}

// RedactHook scans string tool arguments for sensitive content and masks or
// blocks before the tool executes.
type RedactHook struct {
	rules       []RedactRule
	blockReason string
}

// NewRedactHook creates a new redaction hook with the given configuration.
func NewRedactHook(cfg RedactConfig) (*RedactHook, error) {
	rules := make([]RedactRule, 0, len(cfg.Rules))

	for _, rule := range cfg.Rules {
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, &ErrInvalidPattern{Pattern: rule.Pattern, Err: err}
		}
		rule.compiled = compiled
		if rule.Replacement == "" {
			rule.Replacement = "***"
		}
		rules = append(rules, rule)
	}

	return &RedactHook{
		rules:       rules,
		blockReason: cfg.BlockReason,
	}, nil
}

// ErrInvalidPattern is returned when a regex pattern is invalid.
type ErrInvalidPattern struct {
	Pattern string
	Err     error
}

func (e *ErrInvalidPattern) Error() string {
	return "invalid redact pattern '" + e.Pattern + "': " + e.Err.Error()
}

func (e *ErrInvalidPattern) Unwrap() error {
	return e.Err
}

// Handler returns a hook handler that redacts tool arguments.
func (h *RedactHook) Handler(id string) *hooks.Handler {
	return &hooks.Handler{
		ID:          id,
		Priority:    90, // High priority, after logging
		Source:      "_builtin",
		Description: "Masks or blocks sensitive content in tool arguments",
		Enabled:     true,
		Handler:     h.handle,
	}
}

func (h *RedactHook) handle(_ context.Context, hookCtx *hooks.Context) (*hooks.Result, error) {
	if hookCtx.ToolCall == nil || len(hookCtx.ToolCall.Params) == 0 {
		return hooks.ContinueResult(), nil
	}

	params := make(map[string]any, len(hookCtx.ToolCall.Params))
	for k, v := range hookCtx.ToolCall.Params {
		params[k] = v
	}

	modified := false
	for key, value := range params {
		str, ok := value.(string)
		if !ok {
			continue
		}

		masked, changed, blockedBy := h.applyRules(str)
		if blockedBy != "" {
			log.Info().
				Str("rule_name", blockedBy).
				Str("param", key).
				Str("tool_name", hookCtx.ToolCall.ToolName).
				Msg("tool call blocked by redact rule")
			result := hooks.StopResult()
			reason := h.blockReason
			if reason == "" {
				reason = "tool argument matched redact rule " + blockedBy
			}
			result.Data = map[string]any{hooks.DataKeyReason: reason}
			return result, nil
		}
		if changed {
			params[key] = masked
			modified = true
		}
	}

	if modified {
		return hooks.ModifiedResult(map[string]any{
			hooks.DataKeyParams: params,
		}), nil
	}

	return hooks.ContinueResult(), nil
}

// applyRules runs all rules over a single string argument. Returns the
// possibly-masked value, whether it changed, and the name of a blocking rule.
func (h *RedactHook) applyRules(content string) (string, bool, string) {
	modified := false

	for _, rule := range h.rules {
		if rule.compiled == nil || !rule.compiled.MatchString(content) {
			continue
		}

		log.Debug().
			Str("rule_name", rule.Name).
			Str("action", string(rule.Action)).
			Msg("redact rule matched")

		switch rule.Action {
		case RedactActionMask:
			newContent := rule.compiled.ReplaceAllString(content, rule.Replacement)
			if newContent != content {
				content = newContent
				modified = true
			}

		case RedactActionBlock:
			return content, modified, rule.Name

		case RedactActionWarn:
			log.Warn().
				Str("rule_name", rule.Name).
				Str("pattern", rule.Pattern).
				Msg("redact warn: suspicious tool argument")
		}
	}

	return content, modified, ""
}

// RegisterRedactHook registers the redaction hook on before_tool_call.
func RegisterRedactHook(manager *hooks.Manager, cfg RedactConfig) error {
	hook, err := NewRedactHook(cfg)
	if err != nil {
		return err
	}

	return manager.Register(hooks.HookBeforeToolCall, hook.Handler("builtin:redact"))
}

// CommonRedactPatterns provides commonly used redaction patterns.
var CommonRedactPatterns = struct {
	// CreditCard matches credit card numbers (simplified).
	CreditCard string
	// SSN matches US Social Security Numbers.
	SSN string
	// APIKey matches common API key patterns.
	APIKey string
	// PrivateKey matches PEM private key headers.
	PrivateKey string
}{
	CreditCard: `\b(?:\d[ -]*?){13,16}\b`,
	SSN:        `\b\d{3}-\d{2}-\d{4}\b`,
	APIKey:     `\b(?:sk|api|key|token|secret)[-_]?[A-Za-z0-9]{20,}\b`,
	PrivateKey: `-----BEGIN [A-Z ]*PRIVATE KEY-----`,
}

// NewSensitiveDataRedactor creates a redactor configured for common
// sensitive data patterns. Keys and card numbers are masked; private key
// material blocks the call outright.
func NewSensitiveDataRedactor() (*RedactHook, error) {
	return NewRedactHook(RedactConfig{
		Rules: []RedactRule{
			{Name: "credit_card", Pattern: CommonRedactPatterns.CreditCard, Action: RedactActionMask},
			{Name: "ssn", Pattern: CommonRedactPatterns.SSN, Action: RedactActionMask},
			{Name: "api_key", Pattern: CommonRedactPatterns.APIKey, Action: RedactActionMask},
			{Name: "private_key", Pattern: CommonRedactPatterns.PrivateKey, Action: RedactActionBlock},
		},
	})
}

// MaskString masks a string while preserving some visible characters.
func MaskString(s string, visibleStart, visibleEnd int) string {
	if len(s) <= visibleStart+visibleEnd {
		return strings.Repeat("*", len(s))
	}

	masked := make([]byte, len(s))
	for i := range masked {
		if i < visibleStart || i >= len(s)-visibleEnd {
			masked[i] = s[i]
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}
