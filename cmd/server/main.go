package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariavoice/voice-gateway/internal/auth"
	"github.com/ariavoice/voice-gateway/internal/config"
	"github.com/ariavoice/voice-gateway/internal/gateway"
	"github.com/ariavoice/voice-gateway/internal/knowledge"
	"github.com/ariavoice/voice-gateway/internal/observability"
	"github.com/ariavoice/voice-gateway/internal/resilience"
	"github.com/ariavoice/voice-gateway/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("realtime_model", cfg.OpenAIModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Gateway Service starting")

	// Agent profile: YAML file when configured, compiled-in defaults otherwise
	store := knowledge.NewStore(knowledge.DefaultProfile())
	if cfg.AgentProfilePath != "" {
		store, err = knowledge.LoadStore(cfg.AgentProfilePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.AgentProfilePath).Msg("Failed to load agent profile")
		}
		logger.Info().Str("path", cfg.AgentProfilePath).Msg("Agent profile loaded")
	}

	tokens := auth.Static(cfg.OpenAIAPIKey)

	ttsBreaker := resilience.NewCircuitBreaker("elevenlabs",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	synth := tts.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, ttsBreaker, logger)

	handler := gateway.NewHandler(gateway.Options{
		Profiles:        store,
		Tokens:          tokens,
		RealtimeURL:     cfg.OpenAIRealtimeURL,
		RealtimeModel:   cfg.OpenAIModel,
		Synth:           synth,
		SessionConfig:   cfg.SessionConfig(),
		ConnectAttempts: cfg.UpstreamConnectAttempts,
		ConnectBackoff:  time.Duration(cfg.UpstreamConnectBackoffMs) * time.Millisecond,
		Logger:          logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/voice-agent", handler.Handle())
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"realtime_upstream": func(ctx context.Context) (bool, error) {
			token, err := tokens.Token(ctx)
			if err != nil {
				return false, err
			}
			return token != "", nil
		},
		"tts": func(ctx context.Context) (bool, error) {
			if cfg.ElevenLabsAPIKey == "" {
				return false, fmt.Errorf("TTS API key not configured")
			}
			state := ttsBreaker.State()
			observability.UpdateCircuitBreakerState(ttsBreaker.Name(), int(state))
			return state != resilience.StateOpen, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// Voice sessions hold the websocket open far longer than any
		// request timeout; only the idle timeout applies to them.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/voice-agent", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
