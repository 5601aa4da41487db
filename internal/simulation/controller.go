package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"livecard/internal/database"
	"livecard/internal/lease"
	"livecard/internal/model"
	"livecard/internal/observability"
)

// Guard enforces a single running simulation across processes. Refresh
// reports lease.ErrLeaseLost once another holder may have taken over.
type Guard interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Progress counts finished fights against the card size.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	IsRunning         bool     `json:"isRunning"`
	IsPaused          bool     `json:"isPaused"`
	CurrentState      State    `json:"currentState"`
	EventID           string   `json:"eventId,omitempty"`
	EventName         string   `json:"eventName,omitempty"`
	CurrentFightIndex int      `json:"currentFightIndex"`
	CurrentFightID    string   `json:"currentFightId,omitempty"`
	CurrentRound      int      `json:"currentRound"`
	TotalFights       int      `json:"totalFights"`
	Progress          Progress `json:"progress"`
	LastError         string   `json:"lastError,omitempty"`
}

// run is the single session slot.
type run struct {
	machine *Machine
	timer   Timer
	token   uint64
	paused  bool
	lastErr error
}

func (r *run) status(running bool) Status {
	s := r.machine.Session()
	st := Status{
		IsRunning:         running,
		IsPaused:          r.paused,
		CurrentState:      s.State,
		EventID:           s.EventID,
		EventName:         s.EventName,
		CurrentFightIndex: s.FightIndex,
		CurrentRound:      s.Round,
		TotalFights:       len(s.Fights),
	}
	completed := s.FightIndex
	if s.State == StateFightComplete {
		completed++
	}
	st.Progress = Progress{Completed: completed, Total: len(s.Fights)}
	if f, ok := s.CurrentFight(); ok && s.State.inFight() {
		st.CurrentFightID = f.ID
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for scheduling.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithGuard enables the cross-process lease.
func WithGuard(guard Guard) Option {
	return func(c *Controller) { c.guard = guard }
}

// WithMetrics records transitions and sessions.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = metrics }
}

// WithDefaultTimeScale sets the base that Start overrides are merged into.
func WithDefaultTimeScale(ts TimeScale) Option {
	return func(c *Controller) { c.defaults = ts }
}

// WithObserver registers a callback invoked after every transition attempt,
// failed ones included. The callback runs outside the controller lock.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller holds at most one simulation session and drives it with timers.
// It is safe for concurrent use.
type Controller struct {
	logger   *slog.Logger
	store    Store
	outcomes Outcomes
	clock    Clock
	guard    Guard
	metrics  *observability.Metrics
	defaults TimeScale
	observer func(Status)

	mu     sync.Mutex
	active *run
	seq    uint64
}

// NewController creates a Controller with no session.
func NewController(logger *slog.Logger, store Store, outcomes Outcomes, opts ...Option) *Controller {
	c := &Controller{
		logger:   logger,
		store:    store,
		outcomes: outcomes,
		clock:    RealClock(),
		defaults: DefaultTimeScale(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a session for eventID and schedules its first transition.
func (c *Controller) Start(ctx context.Context, eventID string, overrides *TimeScaleOverrides, autoGenerate bool) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return Status{}, ErrSessionActive
	}

	ts := c.defaults.Merge(overrides)
	if err := ts.Validate(); err != nil {
		return Status{}, err
	}

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Status{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return Status{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	fights, err := c.store.ListFights(ctx, eventID)
	if err != nil {
		return Status{}, fmt.Errorf("load fights for %s: %w", eventID, err)
	}

	if c.guard != nil {
		ok, err := c.guard.Acquire(ctx, eventID)
		if err != nil {
			return Status{}, fmt.Errorf("acquire simulation lease: %w", err)
		}
		if !ok {
			return Status{}, ErrLeaseHeld
		}
	}

	session := NewSession(event, fights, ts, autoGenerate)
	r := &run{machine: NewMachine(c.logger, c.store, c.outcomes, c.metrics, session)}
	c.active = r
	c.metrics.SessionStarted()
	c.armLocked(r)

	c.logger.Info("Simulation started",
		"eventId", event.ID,
		"eventName", event.Name,
		"fights", len(session.Fights),
		"speedMultiplier", ts.SpeedMultiplier,
		"autoGenerateOutcomes", autoGenerate,
	)
	return r.status(true), nil
}

// Pause cancels the pending transition and freezes the session.
func (c *Controller) Pause() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil {
		return Status{}, ErrNoSession
	}
	if !r.paused {
		r.paused = true
		c.stopTimerLocked(r)
		c.logger.Info("Simulation paused", "eventId", r.machine.session.EventID, "state", r.machine.State())
	}
	return r.status(true), nil
}

// Resume reschedules a paused session using its current state's delay.
func (c *Controller) Resume() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil {
		return Status{}, ErrNoSession
	}
	if !r.paused {
		return Status{}, ErrNotPaused
	}
	r.paused = false
	c.armLocked(r)
	c.logger.Info("Simulation resumed", "eventId", r.machine.session.EventID, "state", r.machine.State())
	return r.status(true), nil
}

// SkipToNext runs one transition immediately. A paused session stays paused
// and no timer is armed until Resume.
func (c *Controller) SkipToNext(ctx context.Context) (Status, error) {
	c.mu.Lock()
	r := c.active
	if r == nil {
		c.mu.Unlock()
		return Status{}, ErrNoSession
	}
	c.stopTimerLocked(r)
	status, err := c.stepLocked(ctx, r)
	c.mu.Unlock()

	c.notify(status)
	return status, err
}

// Stop destroys the session without touching stored records.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil {
		return ErrNoSession
	}
	c.endLocked(ctx, r)
	c.logger.Info("Simulation stopped", "eventId", r.machine.session.EventID, "state", r.machine.State())
	return nil
}

// Status returns a snapshot. With no session the state is STOPPED.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Status{CurrentState: StateStopped}
	}
	return c.active.status(true)
}

// Reset stops the session if it targets eventID, then clears the event's
// progress and the selected user data.
func (c *Controller) Reset(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.active; r != nil && r.machine.session.EventID == eventID {
		c.endLocked(ctx, r)
		c.logger.Info("Simulation stopped for reset", "eventId", eventID)
	}

	summary, err := c.store.ResetEvent(ctx, eventID, opts)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.ResetSummary{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return model.ResetSummary{}, fmt.Errorf("reset event %s: %w", eventID, err)
	}

	c.logger.Info("Event reset", "eventId", eventID, "fightsReset", summary.FightsReset, "deleted", summary.Deleted)
	return summary, nil
}

// armLocked schedules the next transition unless the session is paused or done.
func (c *Controller) armLocked(r *run) {
	if r.paused || r.machine.Finished() {
		return
	}
	c.seq++
	token := c.seq
	r.token = token
	r.timer = c.clock.AfterFunc(r.machine.Delay(), func() { c.fire(r, token) })
}

func (c *Controller) stopTimerLocked(r *run) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.token = 0
}

// fire runs a timer-driven transition. Callbacks from a cancelled timer or an
// ended session are ignored.
func (c *Controller) fire(r *run, token uint64) {
	c.mu.Lock()
	if c.active != r || r.paused || r.token != token {
		c.mu.Unlock()
		return
	}
	r.timer = nil
	status, _ := c.stepLocked(context.Background(), r)
	c.mu.Unlock()

	c.notify(status)
}

// stepLocked advances the machine once. On success the next transition is
// armed, or the session is ended if the event is finished. On failure, or when
// the lease is lost, the error is kept in the status and nothing is rescheduled.
func (c *Controller) stepLocked(ctx context.Context, r *run) (Status, error) {
	if err := r.machine.Advance(ctx); err != nil {
		r.lastErr = err
		c.logger.Error("Simulation transition failed",
			"eventId", r.machine.session.EventID,
			"state", r.machine.State(),
			"error", err,
		)
		return r.status(true), err
	}
	r.lastErr = nil

	if r.machine.Finished() {
		c.endLocked(ctx, r)
		c.logger.Info("Simulation finished", "eventId", r.machine.session.EventID)
		return r.status(false), nil
	}

	if c.guard != nil {
		if err := c.guard.Refresh(ctx); err != nil {
			if errors.Is(err, lease.ErrLeaseLost) {
				r.lastErr = err
				c.logger.Error("Simulation lease lost, halting",
					"eventId", r.machine.session.EventID,
					"state", r.machine.State(),
				)
				return r.status(true), err
			}
			c.logger.Warn("Failed to refresh simulation lease", "error", err)
		}
	}
	c.armLocked(r)
	return r.status(true), nil
}

// endLocked cancels the timer, empties the slot and releases the lease.
func (c *Controller) endLocked(ctx context.Context, r *run) {
	c.stopTimerLocked(r)
	c.active = nil
	c.metrics.SessionEnded()
	if c.guard != nil {
		if err := c.guard.Release(ctx); err != nil {
			c.logger.Warn("Failed to release simulation lease", "error", err)
		}
	}
}

func (c *Controller) notify(status Status) {
	if c.observer != nil {
		c.observer(status)
	}
}
