package sched

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"steward/internal/hooks"
	"steward/internal/policy"
	"steward/internal/policy/approval"
	"steward/internal/pubsub"
	"steward/internal/tools"
)

// Deps are the collaborators an Instance schedules against. Tools is
// required; every other dependency is optional and its stage is skipped
// when nil.
type Deps struct {
	Tools     *tools.Registry
	Hooks     *hooks.Manager
	Policy    policy.PolicyChecker
	Approvals approval.ApprovalHandler
	Audit     AuditRecorder

	// Workspace is the path substituted for $WORKSPACE in policy prefixes.
	Workspace string

	// HookConfigPath, when set, is loaded into Hooks during registry
	// construction before the instance accepts work.
	HookConfigPath string

	// OnBatchComplete receives each finished batch exactly once.
	OnBatchComplete BatchCompleteFunc
}

// Instance schedules tool calls for one (sessionID, agentID) actor. Calls
// are tracked from submission until their batch completes; duplicate call
// IDs against tracked calls are dropped silently.
type Instance struct {
	id        string
	sessionID string
	agentID   string
	deps      Deps

	broker *pubsub.Broker[OutputEvent]

	mu           sync.Mutex
	tracked      map[string]*Call
	batches      map[string]*batch
	pending      []pendingSubmission
	ready        bool
	closed       bool
	lastActivity time.Time
}

type pendingSubmission struct {
	ctx      context.Context
	requests []Request
}

// NewInstance creates an instance for the given actor. The instance starts
// unready: submissions queue until MarkReady replays them in order.
func NewInstance(sessionID, agentID string, deps Deps) *Instance {
	if agentID == "" {
		agentID = PrimaryAgentID
	}
	return &Instance{
		id:           uuid.New().String(),
		sessionID:    sessionID,
		agentID:      agentID,
		deps:         deps,
		broker:       pubsub.NewBroker[OutputEvent](),
		tracked:      make(map[string]*Call),
		batches:      make(map[string]*batch),
		lastActivity: time.Now(),
	}
}

// ID returns the instance's unique identifier.
func (in *Instance) ID() string { return in.id }

// SessionID returns the owning session.
func (in *Instance) SessionID() string { return in.sessionID }

// AgentID returns the owning agent.
func (in *Instance) AgentID() string { return in.agentID }

// IsPrimary reports whether this instance serves the main conversation
// loop rather than a sub-agent.
func (in *Instance) IsPrimary() bool { return in.agentID == PrimaryAgentID }

// Schedule submits a batch of tool-call requests. It returns as soon as
// the batch is admitted; results arrive through OnBatchComplete. Requests
// submitted before MarkReady queue and replay in submission order.
func (in *Instance) Schedule(ctx context.Context, requests []Request) error {
	if ctx == nil {
		ctx = context.Background()
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrInstanceClosed
	}
	if !in.ready {
		in.pending = append(in.pending, pendingSubmission{ctx: ctx, requests: requests})
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	in.startBatch(ctx, requests)
	return nil
}

// MarkReady flips the instance live and replays queued submissions in the
// order they arrived. Idempotent.
func (in *Instance) MarkReady() {
	in.mu.Lock()
	if in.ready || in.closed {
		in.mu.Unlock()
		return
	}
	in.ready = true
	queued := in.pending
	in.pending = nil
	in.mu.Unlock()

	for _, sub := range queued {
		in.startBatch(sub.ctx, sub.requests)
	}
}

// CancelAll fires the cancellation token of every in-flight batch. Calls
// already terminal are unaffected.
func (in *Instance) CancelAll() {
	in.mu.Lock()
	cancels := make([]*batch, 0, len(in.batches))
	for _, b := range in.batches {
		cancels = append(cancels, b)
	}
	in.mu.Unlock()

	for _, b := range cancels {
		b.cancel()
	}
}

// SubscribeOutput returns a channel of live-output events. The
// subscription is removed when ctx is done.
func (in *Instance) SubscribeOutput(ctx context.Context) <-chan pubsub.Event[OutputEvent] {
	in.touch()
	return in.broker.Subscribe(ctx)
}

// LastActivity returns the time of the most recent output chunk or
// subscription, used for idle-session reaping.
func (in *Instance) LastActivity() time.Time {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastActivity
}

// TrackedCount returns the number of live (non-delivered) calls.
func (in *Instance) TrackedCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.tracked)
}

// TrackedCall returns the live call with the given ID, if any.
func (in *Instance) TrackedCall(callID string) (*Call, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	c, ok := in.tracked[callID]
	return c, ok
}

// Close cancels all in-flight batches, drops queued submissions, and
// shuts down the output broker. Further Schedule calls fail with
// ErrInstanceClosed.
func (in *Instance) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.pending = nil
	cancels := make([]*batch, 0, len(in.batches))
	for _, b := range in.batches {
		cancels = append(cancels, b)
	}
	in.mu.Unlock()

	for _, b := range cancels {
		b.cancel()
	}
	in.broker.Shutdown()
}

// publishOutput fans one chunk out to subscribers and bumps last activity.
func (in *Instance) publishOutput(call *Call, chunk string) {
	in.touch()
	in.broker.Publish(pubsub.EventUpdated, OutputEvent{
		SessionID: in.sessionID,
		AgentID:   call.Request().AgentID,
		CallID:    call.ID(),
		Chunk:     chunk,
		At:        time.Now(),
	})
}

func (in *Instance) touch() {
	now := time.Now()
	in.mu.Lock()
	if now.After(in.lastActivity) {
		in.lastActivity = now
	}
	in.mu.Unlock()
}

// startBatch admits requests into a new batch, deduplicating against all
// tracked calls, then runs every admitted call concurrently.
func (in *Instance) startBatch(ctx context.Context, requests []Request) {
	batchCtx, cancel := context.WithCancel(ctx)
	b := &batch{
		id:     uuid.New().String(),
		cancel: cancel,
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		cancel()
		return
	}
	for _, req := range requests {
		if req.AgentID == "" {
			req.AgentID = in.agentID
		}
		if req.CallID == "" {
			req.CallID = uuid.New().String()
		}
		if _, dup := in.tracked[req.CallID]; dup {
			log.Debug().
				Str("call_id", req.CallID).
				Str("tool", req.Name).
				Msg("dropping duplicate tool call")
			continue
		}
		call := newCall(req, b.id)
		in.tracked[req.CallID] = call
		b.calls = append(b.calls, call)
	}
	if len(b.calls) == 0 {
		in.mu.Unlock()
		cancel()
		return
	}
	in.batches[b.id] = b
	in.mu.Unlock()

	log.Debug().
		Str("batch_id", b.id).
		Str("session_id", in.sessionID).
		Str("agent_id", in.agentID).
		Int("calls", len(b.calls)).
		Msg("batch admitted")

	b.run(batchCtx, in)
}
