package builtin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"steward/internal/hooks"

	"github.com/rs/zerolog/log"
)

// RateLimitConfig configures the tool-call rate limit hook.
type RateLimitConfig struct {
	// MaxCalls is the maximum number of tool calls allowed in the window.
	MaxCalls int
	// Window is the time window for rate limiting.
	Window time.Duration
	// KeyFunc extracts the rate limit key from the context (e.g., tool name).
	// If nil, uses a global rate limit.
	KeyFunc func(hookCtx *hooks.Context) string
	// OnLimit is called when the rate limit is exceeded (optional).
	OnLimit func(key string, count int)
	// Reason is the block reason reported when rate limited.
	Reason string
}

// RateLimitHook rejects tool calls that exceed a sliding-window budget.
type RateLimitHook struct {
	maxCalls int
	window   time.Duration
	keyFunc  func(hookCtx *hooks.Context) string
	onLimit  func(key string, count int)
	reason   string

	// Sliding window counters per key
	counters map[string]*slidingWindow
	mu       sync.RWMutex
}

// slidingWindow implements a simple sliding window counter.
type slidingWindow struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// NewRateLimitHook creates a new rate limit hook with the given configuration.
func NewRateLimitHook(cfg RateLimitConfig) *RateLimitHook {
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Reason == "" {
		cfg.Reason = "tool call rate limit exceeded"
	}

	return &RateLimitHook{
		maxCalls: cfg.MaxCalls,
		window:   cfg.Window,
		keyFunc:  cfg.KeyFunc,
		onLimit:  cfg.OnLimit,
		reason:   cfg.Reason,
		counters: make(map[string]*slidingWindow),
	}
}

// Handler returns a hook handler that enforces rate limits.
func (h *RateLimitHook) Handler(id string) *hooks.Handler {
	return &hooks.Handler{
		ID:          id,
		Priority:    80, // After logging and redaction
		Source:      "_builtin",
		Description: "Enforces tool call rate limits",
		Enabled:     true,
		Handler:     h.handle,
	}
}

func (h *RateLimitHook) handle(_ context.Context, hookCtx *hooks.Context) (*hooks.Result, error) {
	key := "_global"
	if h.keyFunc != nil {
		key = h.keyFunc(hookCtx)
	}

	h.mu.Lock()
	window, exists := h.counters[key]
	if !exists {
		window = &slidingWindow{
			timestamps: make([]time.Time, 0),
		}
		h.counters[key] = window
	}
	h.mu.Unlock()

	count := window.add(hookCtx.Timestamp, h.window)
	if count > h.maxCalls {
		log.Warn().
			Str("key", key).
			Int("count", count).
			Int("max", h.maxCalls).
			Dur("window", h.window).
			Msg("tool call rate limit exceeded")

		if h.onLimit != nil {
			h.onLimit(key, count)
		}

		result := hooks.StopResult()
		result.Data = map[string]any{
			hooks.DataKeyReason: h.reason,
		}
		return result, nil
	}

	return hooks.ContinueResult(), nil
}

// add adds a timestamp and returns the count within the window.
func (sw *slidingWindow) add(now time.Time, window time.Duration) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.timestamps = append(sw.timestamps, now)

	cutoff := now.Add(-window)
	validStart := 0
	for i, ts := range sw.timestamps {
		if ts.After(cutoff) {
			validStart = i
			break
		}
	}
	sw.timestamps = sw.timestamps[validStart:]

	return len(sw.timestamps)
}

// count returns the current count within the window.
func (sw *slidingWindow) count(now time.Time, window time.Duration) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := now.Add(-window)
	count := 0
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// Reset resets the rate limit counter for a key.
func (h *RateLimitHook) Reset(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.counters, key)
}

// ResetAll resets all rate limit counters.
func (h *RateLimitHook) ResetAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counters = make(map[string]*slidingWindow)
}

// GetCount returns the current count for a key.
func (h *RateLimitHook) GetCount(key string) int {
	h.mu.RLock()
	window, exists := h.counters[key]
	h.mu.RUnlock()

	if !exists {
		return 0
	}

	return window.count(time.Now(), h.window)
}

// RegisterRateLimitHook registers the rate limit hook on before_tool_call.
func RegisterRateLimitHook(manager *hooks.Manager, cfg RateLimitConfig) error {
	hook := NewRateLimitHook(cfg)
	return manager.Register(hooks.HookBeforeToolCall, hook.Handler("builtin:ratelimit"))
}

// ToolRateLimitKeyFunc returns a key function that buckets by tool name.
func ToolRateLimitKeyFunc() func(hookCtx *hooks.Context) string {
	return func(hookCtx *hooks.Context) string {
		if hookCtx.ToolCall != nil && hookCtx.ToolCall.ToolName != "" {
			return fmt.Sprintf("tool:%s", hookCtx.ToolCall.ToolName)
		}
		return "_global"
	}
}

// SessionRateLimitKeyFunc returns a key function that buckets by session ID.
func SessionRateLimitKeyFunc() func(hookCtx *hooks.Context) string {
	return func(hookCtx *hooks.Context) string {
		if hookCtx.Session != nil && hookCtx.Session.ID != "" {
			return fmt.Sprintf("session:%s", hookCtx.Session.ID)
		}
		return "_global"
	}
}

// Cleanup removes expired entries from the counters.
func (h *RateLimitHook) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-h.window)

	for key, window := range h.counters {
		window.mu.Lock()
		active := false
		for _, ts := range window.timestamps {
			if ts.After(cutoff) {
				active = true
				break
			}
		}
		window.mu.Unlock()

		if !active {
			delete(h.counters, key)
		}
	}
}
