package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowlab-dev/flowlab/internal/engine"
	"github.com/flowlab-dev/flowlab/internal/expressions"
	"github.com/flowlab-dev/flowlab/internal/llm"
	"github.com/flowlab-dev/flowlab/internal/logging"
	"github.com/flowlab-dev/flowlab/internal/scheduler"
	"github.com/flowlab-dev/flowlab/internal/server"
	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/internal/streaming"
	"github.com/flowlab-dev/flowlab/internal/tools"
	"github.com/flowlab-dev/flowlab/internal/validation"
	"github.com/flowlab-dev/flowlab/pkg/mcp"
)

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	if err := run(mode); err != nil {
		fmt.Fprintln(os.Stderr, "flowlab:", err)
		os.Exit(1)
	}
}

func run(mode string) error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("init cel engine: %w", err)
	}
	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()
	conditions := expressions.NewConditionEvaluator(celEngine, exprEngine)

	var llmOpts []llm.Option
	if cfg.LLMEndpoint != "" {
		llmOpts = append(llmOpts, llm.WithEndpoint(cfg.LLMEndpoint))
	}
	if cfg.LLMAPIKey != "" {
		llmOpts = append(llmOpts, llm.WithAPIKey(cfg.LLMAPIKey))
	}
	if cfg.LLMModel != "" {
		llmOpts = append(llmOpts, llm.WithModel(cfg.LLMModel))
	}
	llmClient := llm.New(llmOpts...)

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("init validator: %w", err)
	}

	toolInvoker := tools.NewHTTPInvoker(st, validator, nil)
	executor := engine.NewNodeExecutor(llmClient, toolInvoker, st, jqEngine, logger)

	hub := streaming.NewMemoryHub()
	runner := engine.NewRunner(executor, conditions, st, hub, engine.RunnerConfig{StepLimit: cfg.StepLimit}, logger)

	switch mode {
	case "serve":
		return serveHTTP(ctx, cfg, st, runner, llmClient, validator, hub, logger)
	case "mcp":
		return serveMCP(ctx, st, runner, validator, logger)
	default:
		return fmt.Errorf("unknown mode %q (want serve or mcp)", mode)
	}
}

func serveHTTP(
	ctx context.Context,
	cfg Config,
	st store.Store,
	runner *engine.Runner,
	llmClient *llm.Client,
	validator validation.Validator,
	hub streaming.EventHub,
	logger *slog.Logger,
) error {
	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, runner, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("missed-job recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	api := server.NewServer(server.Deps{
		Store:     st,
		Runner:    runner,
		Models:    llmClient,
		Validator: validator,
		Hub:       hub,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("flowlab listening", slog.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("flowlab stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func serveMCP(
	ctx context.Context,
	st store.Store,
	runner *engine.Runner,
	validator validation.Validator,
	logger *slog.Logger,
) error {
	srv := mcp.NewFlowlabServer(mcp.FlowlabServerDeps{
		Store:     st,
		Runner:    runner,
		Validator: validator,
		Logger:    logger,
	})
	logger.Info("flowlab MCP server on stdio")
	return srv.Serve(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
