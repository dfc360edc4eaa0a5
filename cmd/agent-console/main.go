package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/agent"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/config"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/control"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/ivrapi"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/supervisor"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/transport"
	"github.com/jmaisinchop/ivr-frontend-sub000/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("server_url", cfg.ServerURL).
		Str("api_url", cfg.APIBaseURL).
		Str("agent_id", cfg.AgentID).
		Str("control_port", cfg.ControlPort).
		Msg("starting IVR agent console")

	ivrapi.WarnIfExpiring(cfg.AuthToken, time.Hour, log.Logger)

	// REST collaborator
	apiClient := ivrapi.NewClient(cfg.APIBaseURL, cfg.AuthToken, log.Logger)

	// Transport manager: the single injectable realtime connection
	tm := transport.NewManager(transport.Options{
		URL:                  cfg.ServerURL,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		ReconnectFactor:      cfg.ReconnectFactor,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HealthCheckInterval:  cfg.HealthCheckInterval,
	}, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Agent synchronization engine
	engine := agent.NewEngine(cfg.AgentID, tm, apiClient, agent.Callbacks{
		OnStateChange: func(s agent.LocalState) {
			log.Debug().Str("status", string(s.Status)).Bool("on_call", s.OnCall).Msg("agent state")
		},
		Notify: func(n agent.Notice) {
			log.Info().Str("level", string(n.Level)).Msg(n.Message)
		},
	}, log.Logger)

	// Supervisor control desk
	board := supervisor.NewBoard(tm, apiClient, cfg.SupervisorPollInterval, log.Logger)

	tm.Connect(cfg.AuthToken)
	engine.Start(ctx)
	board.Start(ctx)

	// Local control API
	controlAPI := control.NewAPI(tm, engine, board, log.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	controlAPI.SetupRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.ControlPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("control API listening on :%s", cfg.ControlPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start control API")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	board.Stop()
	engine.Stop()
	tm.Disconnect()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("control API forced to shutdown")
	}

	log.Info().Msg("stopped")
}
