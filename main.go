package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/internal/service"
	"github.com/xiaot623/gogo/agentgate/internal/thread"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
	"github.com/xiaot623/gogo/agentgate/internal/tools/mcptools"
	handler "github.com/xiaot623/gogo/agentgate/internal/transport/http"
	"github.com/xiaot623/gogo/agentgate/policy"
)

const janitorInterval = time.Minute

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (env AGENTGATE_CONFIG)")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pflag.Parse()

	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load(*envFile)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		newLogger(os.Stderr, "info").Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)
	logger.Info("starting agentgate",
		"addr", cfg.Addr(),
		"mode", cfg.Mode,
		"model", cfg.Model,
		"database", cfg.DatabaseURL)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient := llm.NewLLMClient(cfg.Mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checkModel(ctx, logger, llmClient, cfg.Model)

	// Initialize policy engine
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Error("failed to initialize policy engine", "err", err)
		os.Exit(1)
	}

	// Remote tools
	mcpServers := mcptools.Connect(ctx, cfg.MCPServers, tools.DefaultRegistry, logger)
	defer func() {
		if err := mcpServers.Close(); err != nil {
			logger.Warn("failed to close mcp servers", "err", err)
		}
	}()

	// Initialize service
	svc, err := service.New(service.Deps{
		Store:   db,
		Threads: thread.NewStore(),
		LLM:     llmClient,
		Tools:   tools.DefaultRegistry,
		Policy:  policyEngine,
		Logger:  logger,
	}, cfg)
	if err != nil {
		logger.Error("failed to initialize service", "err", err)
		os.Exit(1)
	}
	logger.Info("governance chain", "interceptors", svc.Interceptors())

	go svc.RunThreadJanitor(ctx, janitorInterval)

	server := handler.NewServer(svc, logger)

	go func() {
		if err := server.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()
	logger.Info("listening", "addr", cfg.Addr())

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "err", err)
	}

	logger.Info("agentgate stopped")
}

// checkModel warns when the provider does not list the configured model. Not
// every provider implements the models endpoint, so failures are only logged.
func checkModel(ctx context.Context, logger *slog.Logger, client llm.LLMClient, model string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		logger.Warn("could not list models", "err", err)
		return
	}
	for _, m := range models {
		if m.ID == model {
			return
		}
	}
	logger.Warn("configured model not listed by provider", "model", model, "available", len(models))
}
