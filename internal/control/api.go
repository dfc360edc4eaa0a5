package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/agent"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/supervisor"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/transport"
	"github.com/rs/zerolog"
)

// API exposes a local HTTP surface for operating the console: connection
// status, latency metrics, the agent's own state, the supervisor
// projections, and manual reconnect control.
type API struct {
	transport *transport.Manager
	engine    *agent.Engine
	board     *supervisor.Board
	logger    zerolog.Logger
}

// NewAPI creates the control API
func NewAPI(tr *transport.Manager, engine *agent.Engine, board *supervisor.Board, logger zerolog.Logger) *API {
	return &API{
		transport: tr,
		engine:    engine,
		board:     board,
		logger:    logger.With().Str("component", "control_api").Logger(),
	}
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(r chi.Router) {
	r.Get("/health", api.healthHandler)
	r.Get("/status", api.statusHandler)
	r.Post("/reconnect", api.reconnectHandler)
	r.Post("/disconnect", api.disconnectHandler)
	r.Get("/supervisor/agents", api.supervisorAgentsHandler)
	r.Get("/supervisor/queue", api.supervisorQueueHandler)
}

// statusResponse is the /status payload
type statusResponse struct {
	Connection        string                   `json:"connection"`
	ReconnectAttempts int                      `json:"reconnectAttempts"`
	Latency           transport.LatencyMetrics `json:"latency"`
	Agent             agent.LocalState         `json:"agent"`
	BreakLoading      bool                     `json:"breakLoading"`
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Connection:        api.transport.Status().String(),
		ReconnectAttempts: api.transport.ReconnectAttempts(),
		Latency:           api.transport.LatencyMetrics(),
		Agent:             api.engine.State(),
		BreakLoading:      api.engine.BreakLoading(),
	})
}

func (api *API) reconnectHandler(w http.ResponseWriter, r *http.Request) {
	api.logger.Info().Msg("manual reconnect requested")
	api.transport.ForceReconnect()
	writeJSON(w, map[string]string{"message": "reconnecting"})
}

func (api *API) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	api.logger.Info().Msg("manual disconnect requested")
	api.transport.Disconnect()
	writeJSON(w, map[string]string{"message": "disconnected"})
}

func (api *API) supervisorAgentsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.board.Agents())
}

func (api *API) supervisorQueueHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.board.Queue())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
