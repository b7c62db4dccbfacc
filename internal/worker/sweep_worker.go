package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/service"
)

// SweepWorker drives the periodic escalation sweep. Each run is bounded by
// the configured timeout so a stalled dependency cannot pile runs on top of
// each other.
type SweepWorker struct {
	escalation *service.EscalationService
	cfg        config.SweepConfig
	logger     *zap.Logger
	cron       *cron.Cron
}

// NewSweepWorker constructs the worker.
func NewSweepWorker(escalation *service.EscalationService, cfg config.SweepConfig, logger *zap.Logger) *SweepWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepWorker{escalation: escalation, cfg: cfg, logger: logger}
}

// Start schedules the sweep and returns. skipIfStillRunning keeps overlapping
// runs from stacking when one sweep exceeds the interval.
func (w *SweepWorker) Start() error {
	runner := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	spec := fmt.Sprintf("@every %s", w.cfg.Interval())
	if _, err := runner.AddFunc(spec, w.runOnce); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	runner.Start()
	w.cron = runner
	w.logger.Info("sweep worker started", zap.String("schedule", spec))
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (w *SweepWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *SweepWorker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout())
	defer cancel()

	result, err := w.escalation.Sweep(ctx)
	if err != nil {
		w.logger.Warn("escalation sweep incomplete",
			zap.Int("evaluated", result.Evaluated),
			zap.Error(err))
	}
}
