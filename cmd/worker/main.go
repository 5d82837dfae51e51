package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/bootstrap"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/config"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/observability/logging"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	go serveMetrics(logger, cfg.WorkerMetricsPort, workerMetrics.Handler())

	logger.Info("worker subscribed", "subject", cfg.ChunksSubject)
	err = app.Bus.SubscribeChunkReady(ctx, func(handlerCtx context.Context, event domain.ChunkReady) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
		defer cancel()

		if !event.ReadyAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.ReadyAt))
		}

		workerMetrics.StartChunk()
		start := time.Now()
		processErr := app.EmbedUC.ProcessChunk(processCtx, event)
		workerMetrics.FinishChunk(serviceName, time.Since(start), processErr)
		if processErr != nil {
			logger.Error("process chunk failed",
				"job_id", event.JobID,
				"chunk_id", event.ChunkID,
				"chunk_index", event.ChunkIndex,
				"error", processErr,
			)
			return processErr
		}
		return nil
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(logger *slog.Logger, port string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	if err := http.ListenAndServe(":"+port, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
