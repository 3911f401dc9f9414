package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// PolicyExecutor implements the PolicyChecker interface.
// The active policy may be swapped at runtime (hot reload).
type PolicyExecutor struct {
	mu      sync.RWMutex
	policy  *ToolPolicy
	matcher PatternMatcher
	logger  *slog.Logger
}

// NewPolicyExecutor creates a new PolicyExecutor with the given policy.
func NewPolicyExecutor(policy *ToolPolicy) *PolicyExecutor {
	return &PolicyExecutor{
		policy:  policy,
		matcher: NewDefaultMatcher(),
		logger:  slog.Default(),
	}
}

// SetMatcher sets a custom pattern matcher.
func (e *PolicyExecutor) SetMatcher(m PatternMatcher) {
	e.matcher = m
}

// SetLogger sets a custom logger.
func (e *PolicyExecutor) SetLogger(l *slog.Logger) {
	e.logger = l
}

// Check evaluates whether a tool call is allowed.
// Returns PolicyResult with allow/deny decision and reasons.
//
// Check order:
// 1. Blocklist check (takes precedence)
// 2. Allowlist check (if not default allow)
// 3. Dangerous operations check
// 4. Parameter rules check
func (e *PolicyExecutor) Check(ctx context.Context, call *ToolCall) (*PolicyResult, error) {
	if call == nil {
		return nil, fmt.Errorf("policy: nil tool call")
	}

	policy := e.GetPolicy()
	if policy == nil {
		policy = &ToolPolicy{DefaultAllow: true}
	}

	result := &PolicyResult{
		Allowed:  true,
		Warnings: []string{},
	}

	e.logger.Debug("policy check started",
		"tool", call.Name,
		"session_id", call.SessionID,
	)

	// 1. Blocklist check - takes precedence over everything
	if e.checkBlocklist(policy, call, result) {
		e.logger.Info("policy check result",
			"tool", call.Name,
			"allowed", false,
			"reason", "blocklist",
		)
		return result, nil
	}

	// 2. Allowlist check - if not default allow
	if e.checkAllowlist(policy, call, result) {
		e.logger.Info("policy check result",
			"tool", call.Name,
			"allowed", false,
			"reason", "not in allowlist",
		)
		return result, nil
	}

	// 3. Dangerous operations check
	if e.checkDangerousOps(policy, call, result) {
		e.logger.Info("policy check result",
			"tool", call.Name,
			"allowed", result.Allowed,
			"require_approval", result.RequireApproval,
			"reason", "dangerous operation",
		)
		// If blocked, return immediately; otherwise continue with warnings/approval
		if !result.Allowed {
			return result, nil
		}
	}

	// 4. Parameter rules check
	if e.checkParamRules(policy, call, result) {
		e.logger.Info("policy check result",
			"tool", call.Name,
			"allowed", false,
			"reason", "parameter validation failed",
		)
		return result, nil
	}

	// 5. Global require approval check
	if policy.RequireApproval && !result.RequireApproval {
		result.RequireApproval = true
		result.ApprovalReason = "global approval required"
	}

	e.logger.Info("policy check result",
		"tool", call.Name,
		"allowed", true,
		"require_approval", result.RequireApproval,
	)

	return result, nil
}

// checkBlocklist checks if the tool is in the blocklist.
// Returns true if the tool is blocked (result.Allowed set to false).
func (e *PolicyExecutor) checkBlocklist(policy *ToolPolicy, call *ToolCall, result *PolicyResult) bool {
	if len(policy.Blocklist) == 0 {
		return false
	}

	expanded := ExpandGroups(policy.Blocklist)
	if e.matcher.MatchTool(call.Name, expanded) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("tool '%s' is in blocklist", call.Name)
		result.MatchedRules = append(result.MatchedRules, "blocklist")
		return true
	}

	return false
}

// checkAllowlist checks if the tool is in the allowlist.
// Returns true if the tool is denied (result.Allowed set to false).
func (e *PolicyExecutor) checkAllowlist(policy *ToolPolicy, call *ToolCall, result *PolicyResult) bool {
	// If default allow is true, skip allowlist check
	if policy.DefaultAllow {
		return false
	}

	// If no allowlist defined, deny all
	if len(policy.Allowlist) == 0 {
		result.Allowed = false
		result.Reason = "no tools allowed (empty allowlist with default_allow=false)"
		result.MatchedRules = append(result.MatchedRules, "empty_allowlist")
		return true
	}

	expanded := ExpandGroups(policy.Allowlist)
	if !e.matcher.MatchTool(call.Name, expanded) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("tool '%s' is not in allowlist", call.Name)
		result.MatchedRules = append(result.MatchedRules, "allowlist")
		return true
	}

	return false
}

// checkDangerousOps checks if the tool call matches any dangerous operation rules.
// Returns true if any rule matched (may set RequireApproval or block).
func (e *PolicyExecutor) checkDangerousOps(policy *ToolPolicy, call *ToolCall, result *PolicyResult) bool {
	if len(policy.DangerousOps) == 0 {
		return false
	}

	matched := false
	for i := range policy.DangerousOps {
		rule := &policy.DangerousOps[i]

		// Check if rule applies to this tool
		if rule.Tool != "" && !e.matcher.MatchTool(call.Name, []string{rule.Tool}) {
			continue
		}

		// Check if arguments match the pattern
		if rule.Pattern != "" {
			matches, err := e.matcher.MatchArgs(call.Arguments, rule.Pattern)
			if err != nil {
				e.logger.Warn("invalid dangerous op pattern",
					"rule", rule.Message,
					"pattern", rule.Pattern,
					"error", err,
				)
				continue
			}
			if !matches {
				continue
			}
		}

		// Rule matched - apply action
		matched = true
		ruleName := rule.Message
		if ruleName == "" {
			ruleName = fmt.Sprintf("dangerous_op:%s", rule.Tool)
		}
		result.MatchedRules = append(result.MatchedRules, ruleName)

		e.logger.Warn("dangerous operation matched",
			"tool", call.Name,
			"rule", ruleName,
			"severity", rule.Severity,
			"action", rule.Action,
		)

		switch rule.Action {
		case "block":
			result.Allowed = false
			result.Reason = rule.Message
			return true // Stop processing on block
		case "approve":
			result.RequireApproval = true
			if result.ApprovalReason == "" {
				result.ApprovalReason = rule.Message
			}
		case "warn":
			result.Warnings = append(result.Warnings, rule.Message)
		default:
			// Unknown action, treat as warn
			result.Warnings = append(result.Warnings, rule.Message)
		}
	}

	return matched
}

// checkParamRules checks if the tool call violates any parameter rules.
// Returns true if validation failed (result.Allowed set to false).
func (e *PolicyExecutor) checkParamRules(policy *ToolPolicy, call *ToolCall, result *PolicyResult) bool {
	if len(policy.ParamRules) == 0 {
		return false
	}

	rule, ok := policy.ParamRules[call.Name]
	if !ok {
		return false
	}

	// Check max length
	if rule.MaxLength > 0 && len(call.Arguments) > rule.MaxLength {
		result.Allowed = false
		result.Reason = fmt.Sprintf("arguments exceed max length (%d > %d)", len(call.Arguments), rule.MaxLength)
		result.MatchedRules = append(result.MatchedRules, "param_rule:max_length")
		return true
	}

	// Check pattern
	if rule.Pattern != "" {
		matches, err := e.matcher.MatchArgs(call.Arguments, rule.Pattern)
		if err != nil {
			e.logger.Warn("invalid param rule pattern",
				"tool", call.Name,
				"pattern", rule.Pattern,
				"error", err,
			)
		} else if !matches {
			result.Allowed = false
			result.Reason = "arguments do not match required pattern"
			result.MatchedRules = append(result.MatchedRules, "param_rule:pattern")
			return true
		}
	}

	// Check forbidden values
	for _, forbidden := range rule.Forbidden {
		matches, err := e.matcher.MatchArgs(call.Arguments, forbidden)
		if err != nil {
			continue
		}
		if matches {
			result.Allowed = false
			result.Reason = "arguments contain forbidden value"
			result.MatchedRules = append(result.MatchedRules, "param_rule:forbidden")
			return true
		}
	}

	// Check path prefixes
	if len(rule.PathPrefix) > 0 {
		prefixes := expandWorkspacePrefixes(rule.PathPrefix, call.WorkspacePath)
		for _, path := range extractPathArgs(call.Arguments) {
			if !e.matcher.MatchPath(path, prefixes) {
				result.Allowed = false
				result.Reason = fmt.Sprintf("path '%s' is outside allowed prefixes", path)
				result.MatchedRules = append(result.MatchedRules, "param_rule:path_prefix")
				return true
			}
		}
	}

	return false
}

// pathArgKeys are the argument names treated as file paths.
var pathArgKeys = []string{"path", "file_path", "dir", "directory"}

// extractPathArgs pulls path-like string values out of the serialized
// arguments. Unparseable arguments yield no paths.
func extractPathArgs(arguments string) []string {
	if arguments == "" {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return nil
	}

	var paths []string
	for _, key := range pathArgKeys {
		if v, ok := parsed[key].(string); ok && v != "" {
			paths = append(paths, v)
		}
	}
	return paths
}

// expandWorkspacePrefixes substitutes $WORKSPACE in prefixes with the
// session workspace path. Prefixes referencing $WORKSPACE are dropped
// when no workspace is set.
func expandWorkspacePrefixes(prefixes []string, workspace string) []string {
	expanded := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		if strings.Contains(prefix, "$WORKSPACE") {
			if workspace == "" {
				continue
			}
			prefix = strings.ReplaceAll(prefix, "$WORKSPACE", workspace)
		}
		expanded = append(expanded, prefix)
	}
	return expanded
}

// PolicyStatus holds summary information about the current policy.
type PolicyStatus struct {
	DefaultAllow        bool
	RequireApproval     bool
	BlocklistCount      int
	AllowlistCount      int
	DangerousRulesCount int
	ParamRulesCount     int
}

// Status returns a summary of the current policy configuration.
func (e *PolicyExecutor) Status() PolicyStatus {
	policy := e.GetPolicy()
	if policy == nil {
		return PolicyStatus{
			DefaultAllow: true,
		}
	}

	return PolicyStatus{
		DefaultAllow:        policy.DefaultAllow,
		RequireApproval:     policy.RequireApproval,
		BlocklistCount:      len(policy.Blocklist),
		AllowlistCount:      len(policy.Allowlist),
		DangerousRulesCount: len(policy.DangerousOps),
		ParamRulesCount:     len(policy.ParamRules),
	}
}

// GetPolicy returns the current policy.
func (e *PolicyExecutor) GetPolicy() *ToolPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetPolicy updates the policy.
func (e *PolicyExecutor) SetPolicy(policy *ToolPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
}
