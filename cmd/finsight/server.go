package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/shell/alphavantage"
	"github.com/tickerlab/finsight/internal/shell/api"
	"github.com/tickerlab/finsight/internal/shell/llm"
	"github.com/tickerlab/finsight/internal/shell/marketdata"
	"github.com/tickerlab/finsight/internal/shell/metering"
	"github.com/tickerlab/finsight/internal/shell/profile"
	"github.com/tickerlab/finsight/internal/shell/runner"
	"github.com/tickerlab/finsight/internal/shell/store"
	"github.com/tickerlab/finsight/internal/shell/websearch"
	"github.com/tickerlab/finsight/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

// =============================================================================
// Server
// =============================================================================

// Server represents the Finsight application server.
type Server struct {
	config        *Config
	httpServer    *http.Server
	store         store.Store
	usageReporter *workers.UsageReporter
	sessionPruner *workers.SessionPruner
	logger        *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	if dir := filepath.Dir(cfg.Database.DSN); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitDatabaseError,
			}
		}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Assemble the default toolkits for the team roster
	kits := buildToolkits(cfg, logger)

	team, err := profile.Load(cfg.Agents.Profile, kits)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}
	logger.Info("team assembled",
		"team", team.Name,
		"agents", len(team.Members),
		"profile", cfg.Agents.Profile,
	)

	// The chat client is created even without a key so the server can
	// start and report readiness; queries fail until a key is configured.
	llmConfigured := cfg.LLM.APIKey != ""
	if !llmConfigured {
		logger.Warn("no LLM API key configured, queries will fail until GROQ_API_KEY is set")
	}
	chat := llm.NewGroqClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})

	run, err := runner.NewRunner(chat, s, team, runner.Config{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTurns:      cfg.LLM.MaxTurns,
		HistoryWindow: cfg.LLM.HistoryWindow,
	}, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	handler := api.NewHandler(s, run, api.Config{
		AuthToken:     cfg.Auth.Token,
		LLMConfigured: llmConfigured,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Usage reporter ships token usage to the metering webhook
	var usageReporter *workers.UsageReporter
	if cfg.Metering.Enabled {
		var client metering.Client
		if cfg.Metering.URL != "" {
			client = metering.NewWebhookClient(metering.WebhookConfig{
				URL:   cfg.Metering.URL,
				Token: cfg.Metering.Token,
			})
			logger.Info("metering enabled", "url", cfg.Metering.URL)
		} else {
			client = metering.NewNoOpClient()
			logger.Warn("metering enabled but no webhook URL configured, using no-op client")
		}

		usageReporter = workers.NewUsageReporter(s, client, workers.UsageReporterConfig{
			Interval:  cfg.Metering.ReportInterval,
			BatchSize: cfg.Metering.BatchSize,
		}, logger)
	} else {
		logger.Info("metering disabled")
	}

	// Session pruner deletes conversations idle past the retention window
	var sessionPruner *workers.SessionPruner
	if cfg.Retention.Enabled {
		sessionPruner = workers.NewSessionPruner(s, workers.SessionPrunerConfig{
			Interval:  cfg.Retention.Interval,
			Retention: cfg.Retention.MaxAge,
			BatchSize: cfg.Retention.BatchSize,
		}, logger)
		logger.Info("session retention enabled",
			"max_age", cfg.Retention.MaxAge,
		)
	} else {
		logger.Info("session retention disabled")
	}

	return &Server{
		config:        cfg,
		httpServer:    httpServer,
		store:         s,
		usageReporter: usageReporter,
		sessionPruner: sessionPruner,
		logger:        logger,
	}, nil
}

// buildToolkits constructs the tool backends enabled by config.
func buildToolkits(cfg *Config, logger *slog.Logger) agent.DefaultToolkits {
	var kits agent.DefaultToolkits

	if cfg.Search.Enabled {
		ws := websearch.NewClient(websearch.Config{
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.Search.Timeout,
		})
		kits.WebSearch = ws.Toolkit()
	}

	if cfg.MarketData.Enabled {
		md := marketdata.NewClient(marketdata.Config{
			Timeout:                cfg.MarketData.Timeout,
			NewsCount:              cfg.MarketData.NewsCount,
			StockPrice:             cfg.MarketData.StockPrice,
			AnalystRecommendations: cfg.MarketData.AnalystRecommendations,
			StockFundamentals:      cfg.MarketData.StockFundamentals,
			CompanyNews:            cfg.MarketData.CompanyNews,
		})
		kits.MarketData = md.Toolkit()
	}

	if cfg.AlphaVantage.Enabled {
		if cfg.AlphaVantage.APIKey == "" {
			logger.Info("alpha vantage tools disabled, no API key configured")
		} else {
			av, err := alphavantage.NewClient(alphavantage.Config{
				APIKey:          cfg.AlphaVantage.APIKey,
				Timeout:         cfg.AlphaVantage.Timeout,
				NewsLimit:       cfg.AlphaVantage.NewsLimit,
				StockNews:       cfg.AlphaVantage.StockNews,
				CompanyOverview: cfg.AlphaVantage.CompanyOverview,
			})
			if err != nil {
				logger.Warn("alpha vantage tools disabled", "error", err)
			} else {
				kits.AlphaVantage = av.Toolkit()
			}
		}
	}

	return kits
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start background workers
	if s.usageReporter != nil {
		s.usageReporter.Start()
	}
	if s.sessionPruner != nil {
		s.sessionPruner.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop background workers
	if s.usageReporter != nil {
		s.usageReporter.Stop()
	}
	if s.sessionPruner != nil {
		s.sessionPruner.Stop()
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
