package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/BranchZeroDevs/DataDistillerAI/internal/adapters/http"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/bootstrap"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/config"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/observability/logging"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(app.IngestUC, app.Jobs, app.QueryUC, httpMetrics, httpadapter.Options{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxConcurrent:    cfg.APIMaxConcurrent,
		BackpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		DefaultQueryTopK: cfg.RAGTopK,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
}
