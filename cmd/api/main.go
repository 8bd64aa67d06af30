package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/shiftlog-retrieval/internal/adapters/http"
	"github.com/kirillkom/shiftlog-retrieval/internal/bootstrap"
	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/logging"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	retrieval, err := app.NewRetrieval(ctx, cfg.CorpusLogPath, httpMetrics)
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
			stop()
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingest:    app.IngestUC,
		Documents: app.Repo,
		Remover:   retrieval.Indexer,
		Retriever: retrieval.Service,
		Corpus:    retrieval.Corpus,
	}, httpadapter.WithMetrics(httpMetrics))
	handler, err := router.Handler()
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.APIMaxConnections)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RetrievalTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
