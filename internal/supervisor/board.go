package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmaisinchop/ivr-frontend-sub000/internal/transport"
	"github.com/rs/zerolog"
)

const supervisorChannel = "supervisors"

// Transport is the slice of the transport manager the board uses
type Transport interface {
	On(event string, fn transport.Handler) transport.Subscription
	Off(sub transport.Subscription)
	Subscribe(channel string)
	Unsubscribe(channel string)
}

// API is the REST fallback used when no push has landed recently
type API interface {
	Roster(ctx context.Context) ([]Agent, error)
	Queue(ctx context.Context) ([]QueueEntry, error)
}

// Board holds the control-desk projections. Pushes replace each snapshot
// wholesale; a poll ticker resyncs from REST only when pushes have gone
// quiet, so push always wins over poll.
type Board struct {
	transport    Transport
	api          API
	pollInterval time.Duration
	logger       zerolog.Logger

	mu       sync.RWMutex
	onUpdate func()
	agents   []Agent
	queue    []QueueEntry
	lastPush time.Time
	subs     []transport.Subscription
	cancel   context.CancelFunc
}

// NewBoard creates a control-desk board
func NewBoard(tr Transport, api API, pollInterval time.Duration, logger zerolog.Logger) *Board {
	return &Board{
		transport:    tr,
		api:          api,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "supervisor_board").Logger(),
	}
}

// SetOnUpdate registers a hook invoked after every snapshot replacement
func (b *Board) SetOnUpdate(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUpdate = fn
}

// Start wires the push subscriptions and the poll fallback
func (b *Board) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.cancel = cancel
	b.subs = append(b.subs,
		b.transport.On(EventAgentsUpdate, b.handleAgentsPush),
		b.transport.On(EventQueueUpdate, b.handleQueuePush),
		// Channel membership dies with the socket, so rejoin on every connect
		b.transport.On(transport.EventConnected, func(json.RawMessage) {
			b.transport.Subscribe(supervisorChannel)
		}),
	)
	b.mu.Unlock()

	b.transport.Subscribe(supervisorChannel)
	go b.pollLoop(ctx)
}

// Stop removes subscriptions and stops the poll loop
func (b *Board) Stop() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		b.transport.Off(sub)
	}
	b.transport.Unsubscribe(supervisorChannel)
}

// Agents returns a copy of the current agent projection
func (b *Board) Agents() []Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Agent, len(b.agents))
	copy(out, b.agents)
	return out
}

// Queue returns a copy of the current waiting-call projection
func (b *Board) Queue() []QueueEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]QueueEntry, len(b.queue))
	copy(out, b.queue)
	return out
}

func (b *Board) handleAgentsPush(data json.RawMessage) {
	var agents []Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed agents push")
		return
	}
	b.replace(agents, nil, true)
}

func (b *Board) handleQueuePush(data json.RawMessage) {
	var queue []QueueEntry
	if err := json.Unmarshal(data, &queue); err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed queue push")
		return
	}
	b.replace(nil, queue, true)
}

// replace swaps one or both snapshots atomically
func (b *Board) replace(agents []Agent, queue []QueueEntry, fromPush bool) {
	b.mu.Lock()
	if agents != nil {
		b.agents = agents
	}
	if queue != nil {
		b.queue = queue
	}
	if fromPush {
		b.lastPush = time.Now()
	}
	onUpdate := b.onUpdate
	b.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
}

// pollLoop resyncs from REST when no push has landed within one interval
func (b *Board) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.RLock()
			quiet := time.Since(b.lastPush) >= b.pollInterval
			b.mu.RUnlock()
			if !quiet {
				continue
			}
			b.resync(ctx)
		}
	}
}

func (b *Board) resync(ctx context.Context) {
	agents, err := b.api.Roster(ctx)
	if err != nil {
		b.logger.Debug().Err(err).Msg("roster resync failed")
		agents = nil
	}
	queue, err := b.api.Queue(ctx)
	if err != nil {
		b.logger.Debug().Err(err).Msg("queue resync failed")
		queue = nil
	}
	if agents == nil && queue == nil {
		return
	}

	// A push that landed while the fetch was in flight wins
	b.mu.RLock()
	pushed := time.Since(b.lastPush) < b.pollInterval
	b.mu.RUnlock()
	if pushed {
		return
	}

	b.replace(agents, queue, false)
	b.logger.Debug().Int("agents", len(agents)).Int("queue", len(queue)).Msg("resynced from REST")
}
