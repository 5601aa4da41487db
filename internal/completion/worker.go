package completion

import (
	"context"
	"log/slog"
	"time"
)

const defaultInterval = 5 * time.Minute

// Worker runs the detector on a fixed interval.
type Worker struct {
	logger   *slog.Logger
	detector *Detector
	interval time.Duration
	enabled  bool
}

func NewWorker(logger *slog.Logger, detector *Detector, interval time.Duration, enabled bool) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{
		logger:   logger,
		detector: detector,
		interval: interval,
		enabled:  enabled,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	if !w.enabled {
		w.logger.Info("Completion worker disabled")
		return
	}

	w.logger.Info("Starting completion worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Initial run
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Completion worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	results, err := w.detector.CheckEventCompletion(ctx)
	if err != nil {
		w.logger.Error("Completion sweep failed", "error", err)
	}
	for _, r := range results {
		w.logger.Info("Event finalized", "eventId", r.EventID, "method", r.Method, "message", r.Message)
	}
}
