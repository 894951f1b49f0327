package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	handlers "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/adapter/handler/http"
	environment "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/env"
	grpcServer "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/grpc"
	httpServer "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/http"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/worker"
	pkglogger "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

type backgroundWorker interface {
	Name() string
	Start() error
	Stop()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := environment.Setup(ctx)
	if err != nil {
		pkglogger.DefaultZapLogger().Fatal("Failed to set up payment service", zap.Error(err))
	}
	defer env.Close()

	logger := env.Logger
	cfg := env.Config
	svc := env.Services

	h := httpServer.Handlers{
		Plans:        handlers.NewPlansHandler(env.Repos.Plan, logger),
		Checkout:     handlers.NewCheckoutHandler(svc.Payments, logger),
		Payments:     handlers.NewPaymentHandler(svc.Payments, svc.Status, logger),
		Subscription: handlers.NewSubscriptionHandler(svc.Billing, logger),
		Domains:      handlers.NewDomainHandler(svc.Domains, logger),
		Webhooks: handlers.NewWebhookHandler(svc.Ingestion, svc.Payments, env.Clients.Cards,
			env.Clients.Wallet, env.Clients.Crypto, logger),
	}

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger)
	httpSrv := httpServer.NewServer(cfg, logger, h, env.Clients.Classifier)

	var workers []backgroundWorker
	if cfg.Billing.Enabled {
		if err := env.RequireBilling(); err != nil {
			logger.Fatal("Billing enabled without encryption key", zap.Error(err))
		}
		workers = append(workers, worker.NewBillingWorker(svc.Billing, cfg.Billing.Schedule, logger))
	}
	if cfg.Reconcile.Enabled {
		workers = append(workers, worker.NewReconcileWorker(svc.Reconcile, cfg.Reconcile.Schedule, logger))
	}
	for _, w := range workers {
		if err := w.Start(); err != nil {
			logger.Fatal("Failed to start worker", zap.String("worker", w.Name()), zap.Error(err))
		}
	}

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	for _, w := range workers {
		w.Stop()
		logger.Info("Worker stopped", zap.String("worker", w.Name()))
	}

	logger.Info("Servers shut down successfully")
}
