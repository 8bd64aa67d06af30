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

	"github.com/kirillkom/shiftlog-retrieval/internal/bootstrap"
	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/logging"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/metrics"
)

const serviceName = "worker"

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

	processor := app.NewProcessor()
	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		if doc, err := app.Repo.GetByID(handlerCtx, documentID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(doc.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartDocument()
		err := processor.ProcessByID(processCtx, documentID)
		fragments := 0
		if err == nil {
			if doc, getErr := app.Repo.GetByID(handlerCtx, documentID); getErr == nil {
				fragments = doc.FragmentCount
			}
		}
		workerMetrics.FinishDocument(time.Since(started), fragments, err)
		if err != nil {
			logger.Error("document_processing_failed", "document_id", documentID, "error", err)
			return err
		}
		logger.Info("document_processed",
			"document_id", documentID,
			"fragments", fragments,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("worker_subscription_failed", "error", err)
		os.Exit(1)
	}
}
