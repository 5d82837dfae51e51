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

const serviceName = "ingestor"

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
	go serveMetrics(logger, cfg.IngestorMetricsPort, workerMetrics.Handler())

	logger.Info("ingestor subscribed", "subject", cfg.DocumentsSubject)
	err = app.Bus.SubscribeDocumentSubmitted(ctx, func(handlerCtx context.Context, event domain.DocumentSubmitted) error {
		coordinateCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if !event.SubmittedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.SubmittedAt))
		}
		start := time.Now()
		coordErr := app.CoordinateUC.CoordinateJob(coordinateCtx, event)
		workerMetrics.FinishJob(serviceName, coordErr)
		if coordErr != nil {
			logger.Error("coordinate job failed",
				"job_id", event.JobID,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", coordErr,
			)
			return coordErr
		}
		if job, jobErr := app.Jobs.GetByID(coordinateCtx, event.JobID); jobErr == nil {
			workerMetrics.ObserveFanOut(serviceName, job.TotalChunks)
		}
		logger.Info("job coordinated",
			"job_id", event.JobID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		logger.Error("ingestor subscribe failed", "error", err)
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
