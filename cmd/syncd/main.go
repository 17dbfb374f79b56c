// Package main is the entry point for the conversation sync daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/bus"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/config"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/engine"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/handler"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/membership"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/middleware"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/rest"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting sync daemon")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-syncd", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Credentials shared by REST and transport
	creds := transport.NewStaticTokenProvider(cfg.AuthToken)

	// Pick the push transport backend
	var conn transport.Connection
	switch cfg.TransportKind {
	case "nats":
		conn = transport.NewNATSConnection(cfg.NATSURL, cfg.TopicPrefix, log)
	default:
		conn = transport.NewWebSocketConnection(cfg.HubURL, log)
	}

	mgr := transport.NewManager(conn, creds, transport.ManagerConfig{
		ReconnectInterval: cfg.ReconnectInterval,
		ReconnectMax:      cfg.ReconnectMax,
		Exponential:       cfg.BackoffKind == "exponential",
		InvokeTimeout:     cfg.InvokeTimeout,
	}, log)

	// Assemble the sync engine
	apiClient := rest.NewHTTPClient(cfg.APIBaseURL, cfg.RESTTimeout, creds, log)
	dispatch := bus.New(log)
	topics := membership.NewTracker(mgr, log)
	list := engine.NewListSynchronizer(apiClient, cfg.PageSize, log)
	recon := engine.NewReconciler(list, log)
	session := engine.NewCoordinator(apiClient, recon, list, topics, log)
	eng := engine.New(mgr, dispatch, topics, recon, list, session, apiClient, cfg.QueueTopics, log)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := eng.Start(startCtx); err != nil {
		cancel()
		log.Error("failed to start engine", zap.Error(err))
		os.Exit(1)
	}
	cancel()
	defer eng.Close()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(mgr)
	conversationHandler := handler.NewConversationHandler(eng, cfg.AgentName, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/status", conversationHandler.Status)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/load-more", conversationHandler.LoadMore)
			r.Delete("/selection", conversationHandler.ClearSelection)

			r.Route("/active", func(r chi.Router) {
				r.Get("/messages", conversationHandler.Messages)
				r.Post("/messages", conversationHandler.Send)
				r.Post("/messages/load-more", conversationHandler.LoadOlderMessages)
				r.Post("/resolve", conversationHandler.Resolve)
				r.Post("/transfer", conversationHandler.Transfer)
			})

			r.Post("/{id}/select", conversationHandler.Select)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("stopped")
}
