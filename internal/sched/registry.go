package sched

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Key identifies one scheduler instance.
type Key struct {
	SessionID string
	AgentID   string
}

// entry is a refcounted registry slot. ready closes when construction
// settles; err is set (and the slot evicted) when construction failed.
type entry struct {
	key   Key
	inst  *Instance
	refs  int
	ready chan struct{}
	err   error
}

// Registry hands out shared scheduler instances keyed by (sessionID,
// agentID). The first Acquire for a key constructs the instance
// asynchronously; concurrent acquirers await the same construction.
// Instances are disposed when their refcount drops to zero.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// NewRegistry creates an empty instance registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Acquire returns the instance for (sessionID, agentID), constructing it
// on first use. Later acquirers share the first caller's dependencies.
// A failed construction returns the same error to every waiter and
// evicts the slot so the next Acquire starts fresh.
func (r *Registry) Acquire(ctx context.Context, sessionID, agentID string, deps Deps) (*Instance, error) {
	if agentID == "" {
		agentID = PrimaryAgentID
	}
	key := Key{SessionID: sessionID, AgentID: agentID}

	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		e.refs++
		r.mu.Unlock()
	} else {
		e = &entry{key: key, refs: 1, ready: make(chan struct{})}
		r.entries[key] = e
		r.mu.Unlock()
		go r.construct(e, sessionID, agentID, deps)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		r.Release(sessionID, agentID)
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.inst, nil
}

// construct builds the instance off the acquirer's goroutine. Submissions
// racing construction land in the instance's pending queue and replay when
// MarkReady flips it live.
func (r *Registry) construct(e *entry, sessionID, agentID string, deps Deps) {
	inst := NewInstance(sessionID, agentID, deps)

	if deps.HookConfigPath != "" && deps.Hooks != nil {
		n, err := deps.Hooks.LoadFromFile(deps.HookConfigPath)
		if err != nil {
			log.Error().
				Err(err).
				Str("session_id", sessionID).
				Str("agent_id", agentID).
				Msg("scheduler construction failed")
			inst.Close()
			r.mu.Lock()
			e.err = err
			if r.entries[e.key] == e {
				delete(r.entries, e.key)
			}
			r.mu.Unlock()
			close(e.ready)
			return
		}
		log.Debug().Int("hooks", n).Msg("loaded hook configuration")
	}

	inst.MarkReady()

	r.mu.Lock()
	e.inst = inst
	evicted := r.entries[e.key] != e
	r.mu.Unlock()
	close(e.ready)

	// Every holder released while we were still constructing.
	if evicted {
		inst.Close()
	}
}

// Release drops one reference. At zero the instance is evicted and
// disposed; a later Acquire constructs a fresh one.
func (r *Registry) Release(sessionID, agentID string) {
	if agentID == "" {
		agentID = PrimaryAgentID
	}
	key := Key{SessionID: sessionID, AgentID: agentID}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	inst := e.inst
	r.mu.Unlock()

	if inst != nil {
		inst.Close()
	}
	// When construction is still in flight, the constructor observes the
	// eviction and closes the instance itself.
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll disposes every instance regardless of refcount. Used at
// process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[Key]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.ready:
			if e.inst != nil {
				e.inst.Close()
			}
		default:
			// Still constructing; the constructor sees the eviction.
		}
	}
}
