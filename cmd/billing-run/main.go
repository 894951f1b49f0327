// Command billing-run performs one billing pass and exits. It is meant for
// an external scheduler when the in-process billing worker is disabled.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	environment "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/env"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
	pkglogger "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := environment.Setup(ctx)
	if err != nil {
		pkglogger.DefaultZapLogger().Fatal("Failed to set up payment service", zap.Error(err))
	}

	code := run(ctx, env)
	env.Close()
	os.Exit(code)
}

func run(ctx context.Context, env *environment.Env) int {
	logger := env.Logger

	if err := env.RequireBilling(); err != nil {
		logger.Error("Cannot run billing", zap.Error(err))
		return 1
	}

	summary, err := env.Services.Billing.RunOnce(ctx)
	if errors.Is(err, usecase.ErrRunInProgress) {
		logger.Info("Another billing run is in progress")
		return 0
	}
	if err != nil {
		logger.Error("Billing run failed", zap.Error(err))
		return 1
	}

	logger.Info("Billing run finished",
		zap.Int("due", summary.Due),
		zap.Int("approved", summary.Approved),
		zap.Int("declined", summary.Declined),
		zap.Int("pending", summary.Pending),
		zap.Int("errors", summary.Errors),
		zap.Int("past_due", summary.PastDue))
	if summary.Errors > 0 {
		return 2
	}
	return 0
}
