package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"origen/internal/common/config"
	"origen/internal/common/logging"
	"origen/internal/common/metrics"
	"origen/internal/common/types"
	originationapi "origen/internal/origination/api"
	"origen/internal/origination/application"
	"origen/internal/origination/domain"
	"origen/internal/origination/infrastructure/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Generate correlation ID for startup
	startupCtx := logging.WithCorrelationID(context.Background(), types.NewCorrelationID())

	logging.InfoContext(startupCtx, "Starting Origen credit origination service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"log_level", cfg.LogLevel,
	)

	policy, err := buildPolicy(cfg)
	if err != nil {
		logging.ErrorContext(startupCtx, "Invalid approval policy configuration", "error", err)
		os.Exit(1)
	}

	pool, err := cfg.NewPostgresPool(startupCtx)
	if err != nil {
		logging.ErrorContext(startupCtx, "Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logging.InfoContext(startupCtx, "Database connection established")

	// Setup HTTP server
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", healthHandler)

	// Ready check endpoint (checks dependencies)
	mux.HandleFunc("GET /ready", readyHandler(cfg, pool))

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", metrics.Handler())

	// Setup origination context backed by postgres
	dataStore := postgres.NewDataStore(pool)
	references := postgres.NewReferenceValidator(pool)
	service := application.NewLifecycleService(dataStore, references, policy)
	handler := originationapi.NewHandler(service)
	handler.RegisterRoutes(mux)

	logging.InfoContext(startupCtx, "Origination context initialized",
		"policy_mode", string(policy.Mode),
		"allow_override", policy.AllowOverride,
	)

	// Middleware chain: metrics -> correlation -> handler
	root := metrics.Middleware(correlationMiddleware(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logging.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logging.Info("Server stopped")
}

// buildPolicy parses the affordability thresholds from configuration.
func buildPolicy(cfg *config.Config) (domain.ApprovalPolicy, error) {
	maxRatio, err := decimal.NewFromString(cfg.MaxInstallmentToIncome)
	if err != nil {
		return domain.ApprovalPolicy{}, fmt.Errorf("parsing AFFORDABILITY_MAX_RATIO: %w", err)
	}
	minInternal, err := decimal.NewFromString(cfg.MinInternalScore)
	if err != nil {
		return domain.ApprovalPolicy{}, fmt.Errorf("parsing AFFORDABILITY_MIN_INTERNAL_SCORE: %w", err)
	}
	minExternal, err := decimal.NewFromString(cfg.MinExternalScore)
	if err != nil {
		return domain.ApprovalPolicy{}, fmt.Errorf("parsing AFFORDABILITY_MIN_EXTERNAL_SCORE: %w", err)
	}

	mode := domain.PolicyMode(cfg.PolicyMode)
	if mode != domain.PolicyModeAutomatic && mode != domain.PolicyModeAdvisory {
		return domain.ApprovalPolicy{}, fmt.Errorf("unknown APPROVAL_POLICY_MODE %q", cfg.PolicyMode)
	}

	return domain.ApprovalPolicy{
		Thresholds: domain.Thresholds{
			MaxInstallmentToIncome: maxRatio,
			MinInternalScore:       minInternal,
			MinExternalScore:       minExternal,
		},
		Mode:          mode,
		AllowOverride: cfg.AllowOverride,
	}, nil
}

// requestTimeout is the maximum time allowed for processing a single request.
const requestTimeout = 5 * time.Second

// correlationMiddleware adds correlation ID and request timeout to each request.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check for existing correlation ID in header
		corrID := types.CorrelationID(r.Header.Get("X-Correlation-ID"))
		if corrID.IsEmpty() {
			corrID = types.NewCorrelationID()
		}

		// Add request timeout to prevent runaway requests
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		// Add correlation ID to context
		ctx = logging.WithCorrelationID(ctx, corrID)

		// Set response header
		w.Header().Set("X-Correlation-ID", corrID.String())

		// Log request
		logging.InfoContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// healthHandler returns basic health status.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// readyHandler checks if all dependencies are available.
func readyHandler(cfg *config.Config, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		code := http.StatusOK
		if err := pool.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":      status,
			"environment": cfg.Environment,
		})
	}
}
