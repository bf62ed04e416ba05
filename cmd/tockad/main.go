package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/enrich"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/observability"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/orders"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/processor"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/report"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/server"
)

func main() {
	logger := observability.NewLogger()

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create dir failed", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := jobs.NewMemoryRegistry(logger)
	client := moysklad.NewClient(
		cfg.Inventory.BaseURL,
		cfg.Inventory.Token,
		cfg.Inventory.LookupTimeout,
		cfg.Order.SubmitTimeout,
		logger,
	)
	engine := enrich.NewEngine(client, registry, logger, cfg.Inventory.StoreID, cfg.Pipeline.Workers, cfg.Pipeline.RowDelay)
	writer := report.NewWriter(logger, cfg.Pipeline.SaveRetries, cfg.Pipeline.SaveDelay)
	proc := processor.NewProcessor(client, engine, writer, registry, logger,
		cfg.Inventory.StoreID, cfg.Storage.ResultDir, cfg.Storage.MaxResults)
	ordersEngine := orders.NewEngine(client, registry, logger, cfg.Order, cfg.Inventory.BaseURL, cfg.Pipeline.LookupDelay)

	// Finished registry entries are kept for polling, then swept.
	go func() {
		ticker := time.NewTicker(cfg.Pipeline.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.Sweep(cfg.Pipeline.JobRetention)
			}
		}
	}()

	observability.StartMetricsServer(cfg.Server.MetricsAddr, logger)

	srv := server.New(cfg, registry, proc, ordersEngine, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
