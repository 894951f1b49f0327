package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

// Reconciler is one pass of the pending payment reconciler
type Reconciler interface {
	RunOnce(ctx context.Context) (*usecase.ReconcileSummary, error)
}

// ReconcileWorker settles stale pending payments on a cron schedule
type ReconcileWorker struct {
	reconciler Reconciler
	schedule   string
	logger     *zap.Logger
	cron       *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewReconcileWorker(reconciler Reconciler, schedule string, logger *zap.Logger) *ReconcileWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconcileWorker{
		reconciler: reconciler,
		schedule:   schedule,
		logger:     logger.Named("reconcile-worker"),
		cron:       newCron(logger),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Name returns the worker name
func (w *ReconcileWorker) Name() string {
	return "reconcile"
}

// Start schedules the reconciliation pass
func (w *ReconcileWorker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return fmt.Errorf("failed to schedule reconcile worker: %w", err)
	}
	w.cron.Start()
	w.logger.Info("Reconcile worker started", zap.String("schedule", w.schedule))
	return nil
}

// Stop cancels a pass in progress and waits for it to return
func (w *ReconcileWorker) Stop() {
	w.once.Do(func() {
		w.logger.Info("Stopping reconcile worker")
		w.cancel()
		<-w.cron.Stop().Done()
	})
}

func (w *ReconcileWorker) run() {
	if _, err := w.reconciler.RunOnce(w.ctx); err != nil {
		w.logger.Error("Reconciliation failed", zap.Error(err))
	}
}
