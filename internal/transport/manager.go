package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// Status describes the lifecycle of the logical connection
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const writeTimeout = 10 * time.Second

// Options configures a Manager
type Options struct {
	// URL is the ws:// or wss:// endpoint of the realtime backend
	URL string

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectFactor      float64
	MaxReconnectAttempts int

	HealthCheckInterval time.Duration

	// Dialer overrides the websocket dialer (used in tests)
	Dialer *websocket.Dialer
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = 3 * time.Second
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 30 * time.Second
	}
	if opts.ReconnectFactor <= 1 {
		opts.ReconnectFactor = 1.5
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 10
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return opts
}

// Manager owns exactly one logical connection to the realtime backend. It
// hides reconnection and health-check handling behind a named-event
// subscription surface. Consumers never see the underlying socket.
type Manager struct {
	opts     Options
	logger   zerolog.Logger
	clientID string

	bus     *bus
	latency *latencyTracker
	backoff *backoff.Backoff

	mu                   sync.Mutex
	conn                 *websocket.Conn
	status               Status
	token                string
	manuallyDisconnected bool
	reconnectAttempts    int
	reconnectTimer       *time.Timer
	healthStop           chan struct{}
	pingPending          bool
	pingSentAt           time.Time

	// serializes writes to the current socket
	writeMu sync.Mutex
}

// NewManager creates a Manager. The connection is not opened until Connect
// is called.
func NewManager(opts Options, logger zerolog.Logger) *Manager {
	o := opts.withDefaults()
	return &Manager{
		opts:     o,
		logger:   logger.With().Str("component", "transport").Logger(),
		clientID: uuid.NewString(),
		bus:      newBus(),
		latency:  newLatencyTracker(),
		backoff: &backoff.Backoff{
			Min:    o.ReconnectBaseDelay,
			Max:    o.ReconnectMaxDelay,
			Factor: o.ReconnectFactor,
			Jitter: false,
		},
	}
}

// Connect stores the credential and opens the connection. Calling Connect
// while already connected or connecting is a no-op.
func (m *Manager) Connect(token string) {
	m.mu.Lock()
	if m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.token = token
	m.manuallyDisconnected = false
	m.status = StatusConnecting
	m.mu.Unlock()

	go m.dial()
}

// Disconnect tears the connection down for good: the pending reconnect timer
// and health checker are cancelled, all listeners and the credential are
// cleared, and no automatic reconnection happens until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manuallyDisconnected = true
	m.cancelReconnectLocked()
	m.stopHealthLocked()
	conn := m.conn
	m.conn = nil
	m.status = StatusDisconnected
	m.reconnectAttempts = 0
	m.token = ""
	m.pingPending = false
	m.mu.Unlock()

	if conn != nil {
		m.writeClose(conn)
		conn.Close()
	}

	m.bus.emit(EventDisconnected, nil)
	m.bus.clear()
	m.latency.reset()
	m.logger.Info().Msg("disconnected")
}

// ForceReconnect drops the current connection (if any) and dials again
// immediately with a fresh attempt budget. Registered listeners survive.
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	m.manuallyDisconnected = false
	m.reconnectAttempts = 0
	m.cancelReconnectLocked()
	m.stopHealthLocked()
	conn := m.conn
	m.conn = nil
	m.status = StatusConnecting
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.logger.Info().Msg("forcing reconnect")
	go m.dial()
}

// Subscribe asks the backend to add this client to a channel. The request is
// fire-and-forget: if the connection is down it is dropped, not queued.
func (m *Manager) Subscribe(channel string) {
	m.sendChannelFrame("subscribe", channel)
}

// Unsubscribe asks the backend to remove this client from a channel
func (m *Manager) Unsubscribe(channel string) {
	m.sendChannelFrame("unsubscribe", channel)
}

// Ping triggers one health-check round trip outside the periodic schedule
func (m *Manager) Ping() {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || m.status != StatusConnected {
		m.mu.Unlock()
		m.logger.Debug().Msg("ping skipped, not connected")
		return
	}
	m.pingPending = true
	m.pingSentAt = time.Now()
	m.mu.Unlock()

	m.writeJSON(conn, Envelope{Event: "ping"})
}

// On registers a handler for a named event. Handlers for the same event run
// in registration order.
func (m *Manager) On(event string, fn Handler) Subscription {
	return m.bus.on(event, fn)
}

// Off removes a handler; removing one that was never registered is a no-op.
func (m *Manager) Off(sub Subscription) {
	m.bus.off(sub)
}

// IsConnected reports whether the socket is currently established
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected
}

// Status returns the current connection status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ReconnectAttempts returns the current reconnection attempt counter
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectAttempts
}

// LatencyMetrics returns a copy of the current health-check metrics
func (m *Manager) LatencyMetrics() LatencyMetrics {
	return m.latency.snapshot()
}

// dial attempts one connection with the stored credential attached as
// request metadata, never as a message payload.
func (m *Manager) dial() {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	header.Set("X-Client-ID", m.clientID)

	conn, resp, err := m.opts.Dialer.Dial(m.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.logger.Debug().Err(err).Str("url", m.opts.URL).Msg("connection failed")
		m.mu.Lock()
		m.status = StatusDisconnected
		m.mu.Unlock()
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.manuallyDisconnected || m.conn != nil {
		// Disconnect or a concurrent dial raced us; drop the fresh socket
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.status = StatusConnected
	m.reconnectAttempts = 0
	m.pingPending = false
	stop := make(chan struct{})
	m.healthStop = stop
	m.mu.Unlock()

	m.logger.Info().Str("url", m.opts.URL).Msg("connected")
	m.bus.emit(EventConnected, nil)

	go m.readLoop(conn)
	go m.healthLoop(stop)
}

// readLoop pumps inbound frames until the socket errors out
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(conn, err)
			return
		}
		m.handleFrame(data)
	}
}

// handleFrame decodes one inbound envelope and routes it
func (m *Manager) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch env.Event {
	case eventPong:
		m.handlePong()
	case eventForceDisconnect:
		// Server-initiated termination: equivalent to a manual disconnect,
		// no automatic reconnection afterwards.
		m.logger.Warn().Msg("server forced disconnect")
		m.Disconnect()
	default:
		m.bus.emit(env.Event, env.Data)
	}
}

// connectionLost handles an abnormal disconnect of the given socket. Events
// for sockets already replaced or torn down are ignored.
func (m *Manager) connectionLost(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusDisconnected
	m.pingPending = false
	m.stopHealthLocked()
	manual := m.manuallyDisconnected
	m.mu.Unlock()

	conn.Close()
	m.logger.Debug().Err(err).Msg("connection lost")
	m.bus.emit(EventDisconnected, nil)

	if !manual {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the single reconnect timer. A second request while
// one is pending, or after the attempt budget is spent, is a no-op.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.manuallyDisconnected || m.reconnectTimer != nil || m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	if m.reconnectAttempts >= m.opts.MaxReconnectAttempts {
		attempts := m.reconnectAttempts
		m.mu.Unlock()
		m.logger.Warn().Int("attempts", attempts).Msg("reconnect attempts exhausted")
		payload, _ := json.Marshal(map[string]int{"attempts": attempts})
		m.bus.emit(EventMaxReconnectAttempts, payload)
		return
	}
	delay := m.backoff.ForAttempt(float64(m.reconnectAttempts))
	attempt := m.reconnectAttempts + 1
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()

	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")

	payload, _ := json.Marshal(ReconnectingInfo{Attempt: attempt, DelayMs: delay.Milliseconds()})
	m.bus.emit(EventReconnecting, payload)
}

// reconnect fires when the reconnect timer elapses
func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.manuallyDisconnected || m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnectAttempts++
	m.status = StatusConnecting
	m.mu.Unlock()

	m.dial()
}

// healthLoop runs one immediate health check and then one every interval
// until the connection is torn down.
func (m *Manager) healthLoop(stop chan struct{}) {
	m.Ping()

	ticker := time.NewTicker(m.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Ping()
		}
	}
}

// handlePong resolves the pending health-check probe into a latency sample
func (m *Manager) handlePong() {
	m.mu.Lock()
	if !m.pingPending {
		m.mu.Unlock()
		return
	}
	rtt := time.Since(m.pingSentAt)
	m.pingPending = false
	m.mu.Unlock()

	metrics := m.latency.record(rtt)
	m.logger.Debug().Int64("latency_ms", metrics.Current).Msg("health check")

	payload, _ := json.Marshal(metrics)
	m.bus.emit(EventLatencyUpdate, payload)
}

func (m *Manager) sendChannelFrame(action, channel string) {
	m.mu.Lock()
	conn := m.conn
	connected := m.status == StatusConnected
	m.mu.Unlock()

	if conn == nil || !connected {
		m.logger.Debug().Str("action", action).Str("channel", channel).
			Msg("not connected, dropping channel request")
		return
	}
	m.writeJSON(conn, channelFrame{Event: action, Channel: channel})
}

func (m *Manager) writeJSON(conn *websocket.Conn, v interface{}) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		m.logger.Debug().Err(err).Msg("write error")
	}
}

func (m *Manager) writeClose(conn *websocket.Conn) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// cancelReconnectLocked stops a pending reconnect timer. Caller holds mu.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// stopHealthLocked stops the health-check loop. Caller holds mu.
func (m *Manager) stopHealthLocked() {
	if m.healthStop != nil {
		close(m.healthStop)
		m.healthStop = nil
	}
}
