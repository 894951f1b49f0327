package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

// BillingRunner is one pass of the billing scheduler
type BillingRunner interface {
	RunOnce(ctx context.Context) (*usecase.RunSummary, error)
}

// BillingWorker charges due subscriptions on a cron schedule
type BillingWorker struct {
	billing  BillingRunner
	schedule string
	logger   *zap.Logger
	cron     *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewBillingWorker(billing BillingRunner, schedule string, logger *zap.Logger) *BillingWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &BillingWorker{
		billing:  billing,
		schedule: schedule,
		logger:   logger.Named("billing-worker"),
		cron:     newCron(logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name returns the worker name
func (w *BillingWorker) Name() string {
	return "billing"
}

// Start schedules the billing run
func (w *BillingWorker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return fmt.Errorf("failed to schedule billing worker: %w", err)
	}
	w.cron.Start()
	w.logger.Info("Billing worker started", zap.String("schedule", w.schedule))
	return nil
}

// Stop cancels a run in progress and waits for it to return
func (w *BillingWorker) Stop() {
	w.once.Do(func() {
		w.logger.Info("Stopping billing worker")
		w.cancel()
		<-w.cron.Stop().Done()
	})
}

func (w *BillingWorker) run() {
	summary, err := w.billing.RunOnce(w.ctx)
	if errors.Is(err, usecase.ErrRunInProgress) {
		w.logger.Info("Billing run skipped, another run is in progress")
		return
	}
	if err != nil {
		w.logger.Error("Billing run failed", zap.Error(err))
		return
	}
	w.logger.Debug("Billing run done", zap.Int("due", summary.Due))
}
