package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackend is a minimal realtime backend: it answers pings with pongs and
// lets tests hook the accept and frame paths.
type testBackend struct {
	srv      *httptest.Server
	wsURL    string
	accepted atomic.Int32

	// onConnect runs on the server side right after the upgrade
	onConnect func(conn *websocket.Conn)
	// onFrame handles inbound frames; when nil, pings are answered with pongs
	onFrame func(conn *websocket.Conn, env Envelope)
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.accepted.Add(1)
		if b.onConnect != nil {
			b.onConnect(conn)
		}
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if b.onFrame != nil {
				b.onFrame(conn, env)
				continue
			}
			if env.Event == "ping" {
				conn.WriteJSON(Envelope{Event: "pong"})
			}
		}
	}))
	t.Cleanup(b.srv.Close)

	b.wsURL = "ws" + strings.TrimPrefix(b.srv.URL, "http")
	return b
}

func newTestManager(url string) *Manager {
	return NewManager(Options{
		URL:                  url,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    50 * time.Millisecond,
		ReconnectFactor:      1.5,
		MaxReconnectAttempts: 3,
		HealthCheckInterval:  25 * time.Millisecond,
	}, zerolog.Nop())
}

func TestConnectAndHealthCheck(t *testing.T) {
	backend := newTestBackend(t)
	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	latencyUpdates := make(chan LatencyMetrics, 32)
	m.On(EventLatencyUpdate, func(data json.RawMessage) {
		var metrics LatencyMetrics
		if json.Unmarshal(data, &metrics) == nil {
			latencyUpdates <- metrics
		}
	})

	m.Connect("test-token")

	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)

	select {
	case metrics := <-latencyUpdates:
		assert.NotEmpty(t, metrics.Samples)
		assert.GreaterOrEqual(t, metrics.Max, metrics.Min)
	case <-time.After(time.Second):
		t.Fatal("no latency update received")
	}

	assert.NotEmpty(t, m.LatencyMetrics().Samples)
	assert.Equal(t, 0, m.ReconnectAttempts())
}

func TestConnectIsIdempotent(t *testing.T) {
	backend := newTestBackend(t)
	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	m.Connect("tok")
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)

	m.Connect("tok")
	m.Connect("tok")
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), backend.accepted.Load(), "repeated Connect must not open more sockets")
}

func TestReconnectAfterServerDrop(t *testing.T) {
	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		// Drop the first connection to force a reconnect cycle
		if backend.accepted.Load() == 1 {
			conn.Close()
		}
	}
	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	reconnecting := make(chan ReconnectingInfo, 8)
	m.On(EventReconnecting, func(data json.RawMessage) {
		var info ReconnectingInfo
		if json.Unmarshal(data, &info) == nil {
			reconnecting <- info
		}
	})

	m.Connect("tok")

	select {
	case info := <-reconnecting:
		assert.Equal(t, 1, info.Attempt)
	case <-time.After(time.Second):
		t.Fatal("no reconnecting event")
	}

	require.Eventually(t, func() bool {
		return m.IsConnected() && backend.accepted.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, m.ReconnectAttempts(), "successful connect must reset the attempt counter")
}

func TestMaxReconnectAttemptsFiresExactlyOnce(t *testing.T) {
	// Nothing listens on this address
	m := newTestManager("ws://127.0.0.1:1")
	defer m.Disconnect()

	var fired atomic.Int32
	m.On(EventMaxReconnectAttempts, func(json.RawMessage) {
		fired.Add(1)
	})

	m.Connect("tok")

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	attempts := m.ReconnectAttempts()
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, int32(1), fired.Load(), "exhaustion event must fire exactly once")
	assert.Equal(t, attempts, m.ReconnectAttempts(), "no further attempts after exhaustion")
	assert.False(t, m.IsConnected())
}

func TestManualDisconnectIsTerminal(t *testing.T) {
	backend := newTestBackend(t)
	m := newTestManager(backend.wsURL)

	m.On("some-event", func(json.RawMessage) {})
	m.Connect("tok")
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)

	m.Disconnect()

	assert.False(t, m.IsConnected())
	assert.Equal(t, 0, m.ReconnectAttempts())
	assert.Empty(t, m.LatencyMetrics().Samples)

	m.bus.mu.RLock()
	remaining := len(m.bus.handlers)
	m.bus.mu.RUnlock()
	assert.Zero(t, remaining, "disconnect must clear all listeners")

	// No automatic reconnection after a manual disconnect
	time.Sleep(200 * time.Millisecond)
	assert.False(t, m.IsConnected())
	assert.Equal(t, int32(1), backend.accepted.Load())
}

func TestServerForcedDisconnect(t *testing.T) {
	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		conn.WriteJSON(Envelope{Event: "forceDisconnect"})
	}
	m := newTestManager(backend.wsURL)

	m.Connect("tok")

	require.Eventually(t, func() bool {
		return !m.IsConnected() && backend.accepted.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Forced disconnect behaves like a manual one: no reconnection
	time.Sleep(200 * time.Millisecond)
	assert.False(t, m.IsConnected())
	assert.Equal(t, int32(1), backend.accepted.Load())
}

func TestForceReconnect(t *testing.T) {
	backend := newTestBackend(t)
	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	m.Connect("tok")
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)

	m.ForceReconnect()

	require.Eventually(t, func() bool {
		return m.IsConnected() && backend.accepted.Load() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.ReconnectAttempts())
}

func TestEventsAreForwardedToSubscribers(t *testing.T) {
	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		conn.WriteJSON(Envelope{
			Event: "agent-call-incoming",
			Data:  json.RawMessage(`{"contactId":"c-1"}`),
		})
	}
	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	payloads := make(chan string, 1)
	m.On("agent-call-incoming", func(data json.RawMessage) {
		payloads <- string(data)
	})

	m.Connect("tok")

	select {
	case payload := <-payloads:
		assert.JSONEq(t, `{"contactId":"c-1"}`, payload)
	case <-time.After(time.Second):
		t.Fatal("domain event not forwarded")
	}
}

func TestChannelRequestsAreDroppedWhileDisconnected(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:1")

	assert.NotPanics(t, func() {
		m.Subscribe("agent:1")
		m.Unsubscribe("agent:1")
		m.Ping()
	})
}

func TestChannelJoinOnConnectedReachesEachSocket(t *testing.T) {
	backend := newTestBackend(t)

	var firstConn atomic.Value
	var subsFirst, subsLater atomic.Int32
	backend.onConnect = func(conn *websocket.Conn) {
		if backend.accepted.Load() == 1 {
			firstConn.Store(conn)
			go func() {
				time.Sleep(50 * time.Millisecond)
				conn.Close()
			}()
		}
	}
	backend.onFrame = func(conn *websocket.Conn, env Envelope) {
		switch env.Event {
		case "subscribe":
			if firstConn.Load() == conn {
				subsFirst.Add(1)
			} else {
				subsLater.Add(1)
			}
		case "ping":
			conn.WriteJSON(Envelope{Event: "pong"})
		}
	}

	m := newTestManager(backend.wsURL)
	defer m.Disconnect()

	// The consumer-side rejoin pattern: membership is re-issued per socket
	m.On(EventConnected, func(json.RawMessage) {
		m.Subscribe("agent:7")
	})

	m.Connect("tok")

	require.Eventually(t, func() bool {
		return backend.accepted.Load() >= 2 && subsLater.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond,
		"the replacement socket must receive its own subscribe frame")
	assert.GreaterOrEqual(t, subsFirst.Load(), int32(1))
}

func TestBackoffScheduleMatchesConfiguration(t *testing.T) {
	m := NewManager(Options{URL: "ws://unused"}, zerolog.Nop())

	assert.Equal(t, 3000*time.Millisecond, m.backoff.ForAttempt(0))
	assert.Equal(t, 4500*time.Millisecond, m.backoff.ForAttempt(1))
	assert.Equal(t, 6750*time.Millisecond, m.backoff.ForAttempt(2))

	// Non-decreasing and capped
	prev := time.Duration(0)
	for i := 0; i < 15; i++ {
		d := m.backoff.ForAttempt(float64(i))
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	assert.Equal(t, 30*time.Second, m.backoff.ForAttempt(14))
}
