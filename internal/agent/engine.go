package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmaisinchop/ivr-frontend-sub000/internal/transport"
	"github.com/rs/zerolog"
)

// Snapshot is the REST "my current state" response used to seed the panel
// at mount time.
type Snapshot struct {
	Status         Status       `json:"status"`
	BreakReason    string       `json:"breakReason,omitempty"`
	BreakStartedAt *time.Time   `json:"breakStartedAt,omitempty"`
	CurrentContact *CallContext `json:"currentContact,omitempty"`
}

// ActionResult is the REST response to a break action
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// API is the REST collaborator contract the engine depends on
type API interface {
	MyState(ctx context.Context) (*Snapshot, error)
	RequestBreak(ctx context.Context, reason string) (ActionResult, error)
	ClearBreak(ctx context.Context) (ActionResult, error)
}

// Transport is the slice of the transport manager the engine uses
type Transport interface {
	On(event string, fn transport.Handler) transport.Subscription
	Off(sub transport.Subscription)
	Subscribe(channel string)
	Unsubscribe(channel string)
}

// Callbacks are the UI hooks fed by the engine. Any of them may be nil.
type Callbacks struct {
	// OnStateChange receives a copy of the state after every mutation
	OnStateChange func(LocalState)
	// OnEvent receives every normalized domain event, after the state change
	OnEvent func(Event)
	// Notify receives one-shot user-visible notifications
	Notify func(Notice)
}

// Engine keeps one agent panel's local state consistent with the server.
// It is seeded from a REST snapshot on Start and afterwards driven by
// transport events; break transitions are never applied optimistically.
type Engine struct {
	agentID   string
	transport Transport
	api       API
	callbacks Callbacks
	logger    zerolog.Logger

	mu           sync.Mutex
	state        LocalState
	breakLoading bool
	subs         []transport.Subscription
	started      bool
}

// NewEngine creates an engine for one mounted agent panel
func NewEngine(agentID string, tr Transport, api API, callbacks Callbacks, logger zerolog.Logger) *Engine {
	return &Engine{
		agentID:   agentID,
		transport: tr,
		api:       api,
		callbacks: callbacks,
		logger:    logger.With().Str("component", "sync_engine").Str("agent_id", agentID).Logger(),
		state:     LocalState{Status: StatusOffline},
	}
}

// Start restores state from the REST snapshot and wires the transport
// subscriptions. A failed restore is not an error: it just means there is
// no prior session and the panel starts offline.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.restore(ctx)

	for _, name := range DomainEvents {
		name := name
		sub := e.transport.On(name, func(data json.RawMessage) {
			e.handleWireEvent(name, data)
		})
		e.mu.Lock()
		e.subs = append(e.subs, sub)
		e.mu.Unlock()
	}

	// Channel membership is per socket: each fresh connection needs its own
	// subscribe frame, so re-issue it on every connect.
	connSub := e.transport.On(transport.EventConnected, func(json.RawMessage) {
		e.transport.Subscribe(agentChannel(e.agentID))
	})
	e.mu.Lock()
	e.subs = append(e.subs, connSub)
	e.mu.Unlock()

	e.transport.Subscribe(agentChannel(e.agentID))
}

// Stop removes the engine's transport subscriptions. The local state is
// owned by the panel and simply discarded with it.
func (e *Engine) Stop() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.started = false
	e.mu.Unlock()

	for _, sub := range subs {
		e.transport.Off(sub)
	}
	e.transport.Unsubscribe(agentChannel(e.agentID))
}

// State returns a copy of the current local state
func (e *Engine) State() LocalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// BreakLoading reports whether a break action is in flight
func (e *Engine) BreakLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakLoading
}

// RequestBreak asks the server to place the agent on break. The local state
// is deliberately not touched: the transition lands only when the
// authoritative status-sync event confirms it.
func (e *Engine) RequestBreak(ctx context.Context, reason string) error {
	return e.breakAction(ctx, "request break", func() (ActionResult, error) {
		return e.api.RequestBreak(ctx, reason)
	})
}

// ClearBreak asks the server to end the agent's break. Like RequestBreak,
// the state only changes on the confirming sync event.
func (e *Engine) ClearBreak(ctx context.Context) error {
	return e.breakAction(ctx, "clear break", func() (ActionResult, error) {
		return e.api.ClearBreak(ctx)
	})
}

// ClearSession clears the retiring call context once after-call work is
// done. Local only; the server is not involved.
func (e *Engine) ClearSession() {
	e.mu.Lock()
	e.state.CurrentCall = nil
	e.state.OnCall = false
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.emitState(snapshot)
}

func (e *Engine) breakAction(ctx context.Context, label string, call func() (ActionResult, error)) (err error) {
	e.mu.Lock()
	if e.breakLoading {
		e.mu.Unlock()
		return fmt.Errorf("%s: another break action is in flight", label)
	}
	e.breakLoading = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.breakLoading = false
		e.mu.Unlock()
	}()

	res, err := call()
	if err != nil {
		e.logger.Warn().Err(err).Msg(label + " failed")
		e.notify(Notice{Level: NoticeError, Message: "Could not " + label + ", please try again"})
		return fmt.Errorf("%s: %w", label, err)
	}
	if !res.Success {
		e.logger.Warn().Str("message", res.Message).Msg(label + " rejected")
		msg := res.Message
		if msg == "" {
			msg = "The server rejected the request"
		}
		e.notify(Notice{Level: NoticeError, Message: msg})
		return fmt.Errorf("%s rejected: %s", label, msg)
	}
	return nil
}

// restore seeds state from the one-time REST snapshot
func (e *Engine) restore(ctx context.Context) {
	snap, err := e.api.MyState(ctx)
	if err != nil || snap == nil {
		// No prior session is the normal cold-start path
		e.logger.Debug().Err(err).Msg("no previous session to restore")
		return
	}

	e.mu.Lock()
	e.state.Status = snap.Status
	if snap.Status == StatusOnBreak {
		e.state.BreakReason = snap.BreakReason
		e.state.BreakStartedAt = snap.BreakStartedAt
	}
	if snap.Status == StatusOnCall && snap.CurrentContact != nil {
		call := *snap.CurrentContact
		applyCallDefaults(&call)
		e.state.CurrentCall = &call
		e.state.OnCall = true
	}
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.logger.Info().Str("status", string(snap.Status)).Msg("session restored")
	e.emitState(snapshot)
}

// handleWireEvent decodes and applies one inbound domain event
func (e *Engine) handleWireEvent(name string, data json.RawMessage) {
	ev, err := DecodeEvent(name, data)
	if err != nil {
		e.logger.Warn().Err(err).Str("event", name).Msg("dropping event")
		return
	}

	e.mu.Lock()
	next, notice := Reduce(e.state, ev)
	e.state = next
	snapshot := next.clone()
	e.mu.Unlock()

	e.logger.Debug().Str("event", name).Str("status", string(snapshot.Status)).Msg("event applied")

	e.emitState(snapshot)
	if e.callbacks.OnEvent != nil {
		e.callbacks.OnEvent(ev)
	}
	if notice != nil {
		e.notify(*notice)
	}
}

func (e *Engine) emitState(s LocalState) {
	if e.callbacks.OnStateChange != nil {
		e.callbacks.OnStateChange(s)
	}
}

func (e *Engine) notify(n Notice) {
	if e.callbacks.Notify != nil {
		e.callbacks.Notify(n)
	}
}

func agentChannel(agentID string) string {
	return "agent:" + agentID
}
