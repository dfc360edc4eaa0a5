package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmaisinchop/ivr-frontend-sub000/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string][]transport.Handler
	channels []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]transport.Handler)}
}

func (f *fakeTransport) On(event string, fn transport.Handler) transport.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return transport.Subscription{}
}

func (f *fakeTransport) Off(transport.Subscription) {}

func (f *fakeTransport) Subscribe(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
}

func (f *fakeTransport) Unsubscribe(string) {}

func (f *fakeTransport) emit(event, payload string) {
	f.mu.Lock()
	fns := append([]transport.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(payload))
	}
}

type fakeAPI struct {
	mu          sync.Mutex
	rosterCalls int
	agents      []Agent
	queue       []QueueEntry
}

func (f *fakeAPI) Roster(context.Context) ([]Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosterCalls++
	return f.agents, nil
}

func (f *fakeAPI) Queue(context.Context) ([]QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rosterCalls
}

func TestBoardReplacesSnapshotsOnPush(t *testing.T) {
	tr := newFakeTransport()
	b := NewBoard(tr, &fakeAPI{}, time.Hour, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	assert.Contains(t, tr.channels, "supervisors")

	tr.emit(EventAgentsUpdate, `[{"id":"a-1","name":"Maria","status":"ON_CALL"},{"id":"a-2","name":"Jose","status":"AVAILABLE"}]`)
	tr.emit(EventQueueUpdate, `[{"callId":"q-1","phoneNumber":"099","position":1}]`)

	agents := b.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "Maria", agents[0].Name)

	queue := b.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, "q-1", queue[0].CallID)

	// Each push replaces the previous copy wholesale
	tr.emit(EventAgentsUpdate, `[{"id":"a-9","name":"Lucia","status":"ON_BREAK"}]`)
	agents = b.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "a-9", agents[0].ID)
}

func TestBoardRejoinsChannelOnEveryConnect(t *testing.T) {
	tr := newFakeTransport()
	b := NewBoard(tr, &fakeAPI{}, time.Hour, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	// Membership is per socket, so each connect must produce a fresh join
	tr.emit(transport.EventConnected, `{}`)
	tr.emit(transport.EventConnected, `{}`)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []string{"supervisors", "supervisors", "supervisors"}, tr.channels)
}

func TestBoardOnUpdateFiresAfterReplacement(t *testing.T) {
	tr := newFakeTransport()
	b := NewBoard(tr, &fakeAPI{}, time.Hour, zerolog.Nop())

	var mu sync.Mutex
	updates := 0
	b.SetOnUpdate(func() {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	b.Start(context.Background())
	defer b.Stop()

	tr.emit(EventAgentsUpdate, `[{"id":"a-1"}]`)
	tr.emit(EventQueueUpdate, `[{"callId":"q-1"}]`)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, updates)
}

func TestBoardGettersReturnCopies(t *testing.T) {
	tr := newFakeTransport()
	b := NewBoard(tr, &fakeAPI{}, time.Hour, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	tr.emit(EventAgentsUpdate, `[{"id":"a-1","name":"Maria"}]`)

	agents := b.Agents()
	agents[0].Name = "tampered"

	assert.Equal(t, "Maria", b.Agents()[0].Name)
}

func TestBoardMalformedPushIsDropped(t *testing.T) {
	tr := newFakeTransport()
	b := NewBoard(tr, &fakeAPI{}, time.Hour, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	tr.emit(EventAgentsUpdate, `[{"id":"a-1"}]`)
	tr.emit(EventAgentsUpdate, `not json at all`)

	assert.Len(t, b.Agents(), 1, "previous snapshot survives a malformed push")
}

func TestBoardPollsWhenPushesAreQuiet(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{agents: []Agent{{ID: "a-1", Name: "Maria"}}}
	b := NewBoard(tr, api, 20*time.Millisecond, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	require.Eventually(t, func() bool {
		return api.calls() >= 1 && len(b.Agents()) == 1
	}, time.Second, 5*time.Millisecond, "poll fallback must resync when no push lands")
}

func TestBoardSkipsPollWhilePushesFlow(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{agents: []Agent{{ID: "from-poll"}}}
	b := NewBoard(tr, api, 50*time.Millisecond, zerolog.Nop())
	b.Start(context.Background())
	defer b.Stop()

	// Keep pushes flowing faster than the poll interval
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				tr.emit(EventAgentsUpdate, `[{"id":"from-push"}]`)
			}
		}
	}()

	time.Sleep(150 * time.Millisecond)
	close(stop)
	<-done

	assert.Zero(t, api.calls(), "push precedence: no REST resync while pushes land")
	assert.Equal(t, "from-push", b.Agents()[0].ID)
}
