package transport

import "encoding/json"

// Envelope is the wire format for every frame exchanged with the realtime
// backend: a named event plus an opaque JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// channelFrame is sent for subscribe/unsubscribe requests
type channelFrame struct {
	Event   string `json:"event"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// Events emitted locally by the Manager (never received from the wire)
const (
	EventConnected            = "connected"
	EventDisconnected         = "disconnected"
	EventReconnecting         = "reconnecting"
	EventMaxReconnectAttempts = "maxReconnectAttemptsReached"
	EventLatencyUpdate        = "latencyUpdate"
)

// Control events consumed from the wire and never forwarded to subscribers
const (
	eventPong            = "pong"
	eventForceDisconnect = "forceDisconnect"
)

// ReconnectingInfo is the payload of EventReconnecting
type ReconnectingInfo struct {
	Attempt int   `json:"attempt"`
	DelayMs int64 `json:"delayMs"`
}
