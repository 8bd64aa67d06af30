package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/shiftlog-retrieval/internal/adapters/mcp"
	"github.com/kirillkom/shiftlog-retrieval/internal/bootstrap"
	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/logging"
)

const serviceName = "mcp"

func main() {
	cfg := config.Load()
	// Stdout belongs to the protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	retrieval, err := app.NewRetrieval(ctx, cfg.MCPCorpusLogPath, nil)
	if err != nil {
		logger.Error("retrieval_init_failed", "error", err)
		os.Exit(1)
	}

	go retrieval.Corpus.RunReconciler(ctx, cfg.CorpusReconcileInterval)

	go func() {
		err := app.Queue.SubscribeCorpusChanged(ctx, func(handlerCtx context.Context, change domain.CorpusChange) error {
			return retrieval.Corpus.ApplyChange(handlerCtx, change)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("corpus_subscription_failed", "error", err)
		}
	}()

	logger.Info("mcp_serving", "transport", "stdio", "version", mcpadapter.Version)
	if err := mcpadapter.NewServer(retrieval.Service, cfg.RetrievalKDense).Serve(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
