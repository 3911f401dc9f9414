// Package sched implements the tool-call scheduler: a per-call state
// machine, a batch coordinator with callId deduplication, per-actor
// scheduler instances with live-output fan-out, and a refcounted registry
// keyed by (sessionId, agentId).
package sched

import (
	"context"
	"strings"
	"sync"
	"time"

	"steward/internal/tools"
)

// PrimaryAgentID is the agent identifier of the main conversation loop.
// Instances with any other agent ID belong to sub-agents.
const PrimaryAgentID = "primary"

// Status is the lifecycle state of a tool call.
type Status string

const (
	StatusScheduled        Status = "scheduled"
	StatusValidating       Status = "validating"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether the status is a terminal state. Terminal calls
// never transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Request is an immutable tool-call request submitted by the caller.
type Request struct {
	// CallID is the caller-assigned deduplication key, unique within a
	// session. Empty IDs are assigned a fresh UUID on submission.
	CallID string `json:"call_id"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Args are the structured tool parameters.
	Args map[string]any `json:"args"`

	// ClientInitiated marks requests originating from the client rather
	// than the model.
	ClientInitiated bool `json:"client_initiated,omitempty"`

	// PromptID identifies the model turn that emitted this request.
	PromptID string `json:"prompt_id,omitempty"`

	// AgentID identifies the issuing actor. Requests without one are
	// stamped with the owning instance's agent ID.
	AgentID string `json:"agent_id,omitempty"`
}

// Response is the terminal outcome of a tool call.
type Response struct {
	CallID string `json:"call_id"`

	// Status is the terminal status: success, error, or cancelled.
	Status Status `json:"status"`

	// Content is the tool output (or the error/block reason for display).
	Content string `json:"content,omitempty"`

	// Metadata carries tool-provided extras.
	Metadata map[string]any `json:"metadata,omitempty"`

	// SystemMessage is an after-hook annotation merged into the response.
	SystemMessage string `json:"system_message,omitempty"`

	// SuppressOutput asks the display layer to hide the output. The
	// scheduler sets it but never consumes it.
	SuppressOutput bool `json:"suppress_output,omitempty"`

	// Err is set for error and cancelled statuses.
	Err *CallError `json:"error,omitempty"`
}

// Call is the mutable record tracking one request through its lifecycle.
// Only the state machine's transition functions mutate it.
type Call struct {
	mu sync.Mutex

	request Request
	batchID string

	status            Status
	tool              tools.Tool
	args              map[string]any
	liveOutput        strings.Builder
	response          *Response
	responseDelivered bool

	startedAt  time.Time
	finishedAt time.Time
}

func newCall(req Request, batchID string) *Call {
	return &Call{
		request: req,
		batchID: batchID,
		status:  StatusScheduled,
		args:    req.Args,
	}
}

// ID returns the call's deduplication key.
func (c *Call) ID() string {
	return c.request.CallID
}

// Request returns the immutable originating request.
func (c *Call) Request() Request {
	return c.request
}

// BatchID returns the ID of the batch this call was submitted in.
func (c *Call) BatchID() string {
	return c.batchID
}

// Status returns the call's current lifecycle status.
func (c *Call) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Response returns the terminal outcome, or nil while non-terminal.
func (c *Call) Response() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// LiveOutput returns the output accumulated so far.
func (c *Call) LiveOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveOutput.String()
}

// Duration returns how long the call ran, zero while non-terminal.
func (c *Call) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finishedAt.IsZero() {
		return 0
	}
	return c.finishedAt.Sub(c.startedAt)
}

// ResponseDelivered reports whether this call's result has been handed to
// the caller's consumer.
func (c *Call) ResponseDelivered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseDelivered
}

// transition moves the call to the given non-terminal status. Transitions
// on a terminal call are no-ops.
func (c *Call) transition(status Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return false
	}
	c.status = status
	return true
}

// finish moves the call to a terminal status and records its response.
// Duplicate finishes are no-ops; the first terminal outcome wins.
func (c *Call) finish(resp *Response) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return false
	}
	c.status = resp.Status
	c.response = resp
	c.finishedAt = time.Now()
	return true
}

func (c *Call) bindTool(t tools.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool = t
}

func (c *Call) setArgs(args map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.args = args
}

func (c *Call) currentArgs() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args
}

func (c *Call) appendOutput(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveOutput.WriteString(chunk)
}

func (c *Call) markStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = time.Now()
}

func (c *Call) markDelivered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseDelivered = true
}

// OutputEvent is the live-output fan-out payload: one incremental chunk
// from an executing call.
type OutputEvent struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	CallID    string    `json:"call_id"`
	Chunk     string    `json:"chunk"`
	At        time.Time `json:"at"`
}

// BatchCompleteFunc is invoked exactly once per non-empty batch with the
// terminal calls in submission order. isPrimary distinguishes the main
// conversation instance from sub-agent instances so callers route results
// correctly.
type BatchCompleteFunc func(instanceID string, calls []*Call, isPrimary bool)

// AuditRecorder persists terminal call outcomes. Implementations must not
// block the scheduler for long; errors are logged, not propagated.
type AuditRecorder interface {
	RecordToolCall(ctx context.Context, rec ToolCallRecord) error
}

// ToolCallRecord is the audit row written for each terminal call.
type ToolCallRecord struct {
	SessionID  string
	AgentID    string
	CallID     string
	BatchID    string
	Tool       string
	Args       string
	Status     string
	Error      string
	Duration   time.Duration
	FinishedAt time.Time
}
