// Package completion finalizes events that were left live, either because
// every fight is done or because the event has run far past its expected end.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"livecard/internal/database"
	"livecard/internal/model"
	"livecard/internal/observability"
)

const (
	hardTimeout = 12 * time.Hour
	staleAfter  = 18 * time.Hour

	nonTitleFightDuration = 18 * time.Minute
	titleFightDuration    = 28 * time.Minute
	fightGapDuration      = 8 * time.Minute
	safetyBuffer          = 30 * time.Minute
)

// Store is the slice of the repository the detector needs.
type Store interface {
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error
	ForceCompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) (int, error)
	ListLiveEvents(ctx context.Context) ([]model.EventCard, error)
	ListStaleEvents(ctx context.Context, scheduledBefore time.Time) ([]model.Event, error)
}

// Result describes one event the detector acted on.
type Result struct {
	EventID   string                 `json:"eventId"`
	EventName string                 `json:"eventName"`
	Method    model.CompletionMethod `json:"method"`
	Message   string                 `json:"message"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithMetrics records completions and sweep timings.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Detector) { d.metrics = metrics }
}

// Detector runs completion sweeps. It keeps no state between sweeps.
type Detector struct {
	logger  *slog.Logger
	store   Store
	metrics *observability.Metrics
	now     func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(logger *slog.Logger, store Store, opts ...Option) *Detector {
	d := &Detector{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExpectedDuration estimates how long a card runs: 18 minutes per non-title
// fight, 28 per title fight, 8 between each fight, and a 30 minute buffer.
func ExpectedDuration(fights []model.Fight) time.Duration {
	var d time.Duration
	for _, f := range fights {
		if f.IsTitle {
			d += titleFightDuration
		} else {
			d += nonTitleFightDuration
		}
	}
	return d + time.Duration(len(fights))*fightGapDuration + safetyBuffer
}

// CheckEventCompletion sweeps every live event and every stale unstarted one.
// Failures on individual events are logged and skipped. An error is returned
// only when a listing fails; results gathered up to that point are still
// returned with it.
func (d *Detector) CheckEventCompletion(ctx context.Context) ([]Result, error) {
	started := time.Now()
	now := d.now()
	var (
		results []Result
		errs    int
	)

	cards, err := d.store.ListLiveEvents(ctx)
	if err != nil {
		d.metrics.ObserveSweep(started, 1, true)
		return nil, fmt.Errorf("list live events: %w", err)
	}

	for _, card := range cards {
		res, err := d.evaluate(ctx, card, now)
		if err != nil {
			errs++
			d.logger.Error("Failed to complete event", "eventId", card.Event.ID, "error", err)
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	stale, err := d.store.ListStaleEvents(ctx, now.Add(-staleAfter))
	if err != nil {
		d.metrics.ObserveSweep(started, errs+1, true)
		return results, fmt.Errorf("list stale events: %w", err)
	}

	for _, e := range stale {
		if err := d.store.CompleteEvent(ctx, e.ID, model.CompletionTimeoutSmart); err != nil {
			errs++
			d.logger.Error("Failed to complete stale event", "eventId", e.ID, "error", err)
			continue
		}
		d.metrics.ObserveCompletion(string(model.CompletionTimeoutSmart), 0)
		res := Result{
			EventID:   e.ID,
			EventName: e.Name,
			Method:    model.CompletionTimeoutSmart,
			Message:   fmt.Sprintf("Event never started and was scheduled %s ago", roundDuration(now.Sub(e.Date))),
		}
		d.logger.Info("Stale event completed", "eventId", e.ID, "eventName", e.Name)
		results = append(results, res)
	}

	d.metrics.ObserveSweep(started, errs, false)
	d.logger.Info("Completion sweep finished",
		"liveEvents", len(cards),
		"staleEvents", len(stale),
		"completed", len(results),
		"errors", errs,
	)
	return results, nil
}

// evaluate applies the heuristics to one live event in order. It returns nil
// when the event is still genuinely live.
func (d *Detector) evaluate(ctx context.Context, card model.EventCard, now time.Time) (*Result, error) {
	event := card.Event
	elapsed := now.Sub(event.StartReference())

	if allComplete(card.Fights) {
		if err := d.store.CompleteEvent(ctx, event.ID, model.CompletionAllFights); err != nil {
			return nil, err
		}
		d.metrics.ObserveCompletion(string(model.CompletionAllFights), 0)
		d.logger.Info("Event completed", "eventId", event.ID, "method", model.CompletionAllFights)
		return &Result{
			EventID:   event.ID,
			EventName: event.Name,
			Method:    model.CompletionAllFights,
			Message:   fmt.Sprintf("All %d fights are complete", len(card.Fights)),
		}, nil
	}

	if elapsed > hardTimeout {
		return d.forceComplete(ctx, event, model.CompletionTimeout12h,
			fmt.Sprintf("Event started %s ago, past the 12 hour limit", roundDuration(elapsed)))
	}

	if expected := ExpectedDuration(card.Fights); elapsed > expected {
		return d.forceComplete(ctx, event, model.CompletionTimeoutSmart,
			fmt.Sprintf("Event started %s ago, past its expected duration of %s", roundDuration(elapsed), expected))
	}

	return nil, nil
}

func (d *Detector) forceComplete(ctx context.Context, event model.Event, method model.CompletionMethod, message string) (*Result, error) {
	closed, err := d.store.ForceCompleteEvent(ctx, event.ID, method)
	if err != nil {
		return nil, err
	}
	d.metrics.ObserveCompletion(string(method), closed)
	d.logger.Info("Event force completed",
		"eventId", event.ID,
		"method", method,
		"fightsClosed", closed,
	)
	return &Result{
		EventID:   event.ID,
		EventName: event.Name,
		Method:    method,
		Message:   fmt.Sprintf("%s; %d fights closed without a result", message, closed),
	}, nil
}

// CheckSpecificEvent runs a full sweep and returns the result for eventID, or
// nil if the sweep did not act on it.
func (d *Detector) CheckSpecificEvent(ctx context.Context, eventID string) (*Result, error) {
	results, err := d.CheckEventCompletion(ctx)
	for i := range results {
		if results[i].EventID == eventID {
			return &results[i], err
		}
	}
	return nil, err
}

// ManuallyCompleteEvent marks the event complete with method manual and closes
// every fight still open, whatever the event's current state.
func (d *Detector) ManuallyCompleteEvent(ctx context.Context, eventID string) (Result, error) {
	event, err := d.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Result{}, fmt.Errorf("event %s: %w", eventID, err)
		}
		return Result{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	res, err := d.forceComplete(ctx, *event, model.CompletionManual, "Event completed manually")
	if err != nil {
		return Result{}, fmt.Errorf("complete event %s: %w", eventID, err)
	}
	return *res, nil
}

func allComplete(fights []model.Fight) bool {
	if len(fights) == 0 {
		return false
	}
	for _, f := range fights {
		if !f.IsComplete {
			return false
		}
	}
	return true
}

func roundDuration(d time.Duration) time.Duration {
	return d.Round(time.Minute)
}
