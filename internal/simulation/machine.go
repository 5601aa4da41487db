package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"livecard/internal/model"
	"livecard/internal/observability"
	"livecard/internal/outcome"
)

// Store is the slice of the repository the simulator reads and writes.
type Store interface {
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	ListFights(ctx context.Context, eventID string) ([]model.Fight, error)
	MarkEventStarted(ctx context.Context, eventID string) error
	CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error
	StartFight(ctx context.Context, fightID string) error
	StartRound(ctx context.Context, fightID string, round int) error
	EndRound(ctx context.Context, fightID string, completedRounds int) error
	CompleteFight(ctx context.Context, fightID string, result model.FightResult) error
	ResetEvent(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error)
}

// Outcomes produces simulated fight results. *outcome.Generator implements it.
type Outcomes interface {
	Generate(scheduledRounds int) outcome.Outcome
	SelectWinner(fighter1, fighter2 string) string
	Chance(p float64) bool
}

var _ Outcomes = (*outcome.Generator)(nil)

// Machine advances one Session through the event progression. It performs no
// scheduling of its own; each Advance call runs exactly one transition.
type Machine struct {
	logger   *slog.Logger
	store    Store
	outcomes Outcomes
	metrics  *observability.Metrics
	session  *Session
}

// NewMachine creates a Machine for session. metrics may be nil.
func NewMachine(logger *slog.Logger, store Store, outcomes Outcomes, metrics *observability.Metrics, session *Session) *Machine {
	return &Machine{
		logger:   logger,
		store:    store,
		outcomes: outcomes,
		metrics:  metrics,
		session:  session,
	}
}

// Session returns a snapshot of the session.
func (m *Machine) Session() Session {
	return *m.session
}

// State returns the current state.
func (m *Machine) State() State {
	return m.session.State
}

// Delay returns the scaled wait before the next transition.
func (m *Machine) Delay() time.Duration {
	return m.session.TimeScale.Delay(m.session.State)
}

// Finished reports whether the event has been finalized.
func (m *Machine) Finished() bool {
	return m.session.State == StateEventComplete
}

// Advance executes one transition. The store write happens first; if it fails
// the session is left unchanged and the error is returned.
func (m *Machine) Advance(ctx context.Context) error {
	s := m.session
	var err error

	switch s.State {
	case StateEventPending:
		if err = m.store.MarkEventStarted(ctx, s.EventID); err == nil {
			s.State = StateEventStarted
			m.logger.Info("Event started", "eventId", s.EventID, "eventName", s.EventName)
		}
	case StateEventStarted, StateBetweenFights:
		err = m.startNextFight(ctx)
	case StateFightStarting:
		err = m.startRound(ctx)
	case StateFightInProgress:
		err = m.endRound(ctx)
	case StateRoundEnd:
		err = m.resolveRound(ctx)
	case StateFightComplete:
		err = m.nextFight(ctx)
	case StateEventComplete:
		return ErrEventFinished
	default:
		return fmt.Errorf("unknown simulation state %q", s.State)
	}

	if err != nil {
		m.metrics.ObserveTransitionError()
		return err
	}
	m.metrics.ObserveTransition(string(s.State))
	return nil
}

func (m *Machine) startNextFight(ctx context.Context) error {
	s := m.session
	fight, ok := s.CurrentFight()
	if !ok {
		return m.finalizeEvent(ctx)
	}
	if err := m.store.StartFight(ctx, fight.ID); err != nil {
		return fmt.Errorf("start fight %s: %w", fight.ID, err)
	}
	s.State = StateFightStarting
	s.Round = 0
	m.logger.Info("Fight starting",
		"eventId", s.EventID,
		"fightId", fight.ID,
		"fightIndex", s.FightIndex,
		"scheduledRounds", fight.ScheduledRounds,
		"isTitle", fight.IsTitle,
	)
	return nil
}

func (m *Machine) startRound(ctx context.Context) error {
	s := m.session
	fight, ok := s.CurrentFight()
	if !ok {
		return fmt.Errorf("no fight at index %d", s.FightIndex)
	}
	round := s.Round + 1
	if err := m.store.StartRound(ctx, fight.ID, round); err != nil {
		return fmt.Errorf("start round %d of fight %s: %w", round, fight.ID, err)
	}
	s.Round = round
	s.State = StateFightInProgress
	m.logger.Debug("Round started", "fightId", fight.ID, "round", round)
	return nil
}

func (m *Machine) endRound(ctx context.Context) error {
	s := m.session
	fight, ok := s.CurrentFight()
	if !ok {
		return fmt.Errorf("no fight at index %d", s.FightIndex)
	}
	if err := m.store.EndRound(ctx, fight.ID, s.Round); err != nil {
		return fmt.Errorf("end round %d of fight %s: %w", s.Round, fight.ID, err)
	}
	s.State = StateRoundEnd
	m.logger.Debug("Round ended", "fightId", fight.ID, "round", s.Round)
	return nil
}

// resolveRound decides whether the fight ends after the round just completed.
func (m *Machine) resolveRound(ctx context.Context) error {
	s := m.session
	fight, ok := s.CurrentFight()
	if !ok {
		return fmt.Errorf("no fight at index %d", s.FightIndex)
	}

	if s.AutoGenerateOutcomes {
		candidate := m.outcomes.Generate(fight.ScheduledRounds)
		if candidate.Method.IsFinish() && candidate.Round == s.Round && m.outcomes.Chance(earlyFinishChance) {
			return m.completeFight(ctx, fight, &candidate)
		}
	}

	if s.Round >= fight.ScheduledRounds {
		if !s.AutoGenerateOutcomes {
			return m.completeFight(ctx, fight, nil)
		}
		decision := outcome.Outcome{Method: outcome.MethodDecision, Round: s.Round, Time: outcome.DecisionTime}
		return m.completeFight(ctx, fight, &decision)
	}

	s.State = StateFightStarting
	return nil
}

// completeFight records the result. A nil result closes the fight with its
// ending round only.
func (m *Machine) completeFight(ctx context.Context, fight FightDescriptor, result *outcome.Outcome) error {
	s := m.session
	res := model.FightResult{CompletedRounds: s.Round}
	if result != nil {
		winner := m.outcomes.SelectWinner(fight.Fighter1ID, fight.Fighter2ID)
		method := string(result.Method)
		round := result.Round
		clock := result.Time
		res.Winner = &winner
		res.Method = &method
		res.WinningRound = &round
		res.WinningTime = &clock
	} else {
		round := s.Round
		res.WinningRound = &round
	}

	if err := m.store.CompleteFight(ctx, fight.ID, res); err != nil {
		return fmt.Errorf("complete fight %s: %w", fight.ID, err)
	}
	s.State = StateFightComplete

	if result != nil {
		m.metrics.ObserveOutcome(string(result.Method))
		m.logger.Info("Fight complete",
			"fightId", fight.ID,
			"winner", *res.Winner,
			"method", result.Method,
			"round", result.Round,
			"time", result.Time,
		)
	} else {
		m.logger.Info("Fight complete without result", "fightId", fight.ID, "round", s.Round)
	}
	return nil
}

func (m *Machine) nextFight(ctx context.Context) error {
	s := m.session
	if s.FightIndex+1 >= len(s.Fights) {
		if err := m.finalizeEvent(ctx); err != nil {
			return err
		}
		s.FightIndex = len(s.Fights)
		s.Round = 0
		return nil
	}
	s.FightIndex++
	s.Round = 0
	s.State = StateBetweenFights
	return nil
}

func (m *Machine) finalizeEvent(ctx context.Context) error {
	s := m.session
	if err := m.store.CompleteEvent(ctx, s.EventID, model.CompletionAllFights); err != nil {
		return fmt.Errorf("complete event %s: %w", s.EventID, err)
	}
	s.State = StateEventComplete
	m.logger.Info("Event complete", "eventId", s.EventID, "fights", len(s.Fights))
	return nil
}
