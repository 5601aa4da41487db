package simulation

import (
	"fmt"
	"math"
	"time"
)

const (
	fightStartingDelay = 2 * time.Second
	earlyFinishChance  = 0.30
)

// TimeScale controls how fast a simulated event plays out. Every delay is
// divided by SpeedMultiplier before it is scheduled.
type TimeScale struct {
	EventStartDelay    time.Duration `json:"eventStartDelay"`
	FightStartDelay    time.Duration `json:"fightStartDelay"`
	RoundDuration      time.Duration `json:"roundDuration"`
	BetweenRoundsDelay time.Duration `json:"betweenRoundsDelay"`
	PostFightDelay     time.Duration `json:"postFightDelay"`
	SpeedMultiplier    float64       `json:"speedMultiplier"`
}

// DefaultTimeScale returns the pacing used when nothing is overridden.
func DefaultTimeScale() TimeScale {
	return TimeScale{
		EventStartDelay:    5 * time.Second,
		FightStartDelay:    10 * time.Second,
		RoundDuration:      30 * time.Second,
		BetweenRoundsDelay: 5 * time.Second,
		PostFightDelay:     8 * time.Second,
		SpeedMultiplier:    1,
	}
}

// TimeScaleOverrides replaces individual TimeScale fields. Nil fields keep the base value.
type TimeScaleOverrides struct {
	EventStartDelay    *time.Duration
	FightStartDelay    *time.Duration
	RoundDuration      *time.Duration
	BetweenRoundsDelay *time.Duration
	PostFightDelay     *time.Duration
	SpeedMultiplier    *float64
}

// Merge returns ts with every non-nil override applied.
func (ts TimeScale) Merge(o *TimeScaleOverrides) TimeScale {
	if o == nil {
		return ts
	}
	set := func(dst *time.Duration, src *time.Duration) {
		if src != nil {
			*dst = *src
		}
	}
	set(&ts.EventStartDelay, o.EventStartDelay)
	set(&ts.FightStartDelay, o.FightStartDelay)
	set(&ts.RoundDuration, o.RoundDuration)
	set(&ts.BetweenRoundsDelay, o.BetweenRoundsDelay)
	set(&ts.PostFightDelay, o.PostFightDelay)
	if o.SpeedMultiplier != nil {
		ts.SpeedMultiplier = *o.SpeedMultiplier
	}
	return ts
}

// Validate rejects a non-positive or non-finite multiplier and negative delays.
func (ts TimeScale) Validate() error {
	m := ts.SpeedMultiplier
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return fmt.Errorf("%w: speed multiplier must be positive, got %v", ErrInvalidTimeScale, m)
	}
	delays := map[string]time.Duration{
		"eventStartDelay":    ts.EventStartDelay,
		"fightStartDelay":    ts.FightStartDelay,
		"roundDuration":      ts.RoundDuration,
		"betweenRoundsDelay": ts.BetweenRoundsDelay,
		"postFightDelay":     ts.PostFightDelay,
	}
	for name, d := range delays {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidTimeScale, name, d)
		}
	}
	return nil
}

// Delay returns the scaled wait before the transition out of state.
func (ts TimeScale) Delay(state State) time.Duration {
	var d time.Duration
	switch state {
	case StateEventPending:
		d = ts.EventStartDelay
	case StateEventStarted, StateBetweenFights:
		d = ts.FightStartDelay
	case StateFightStarting:
		d = fightStartingDelay
	case StateFightInProgress:
		d = ts.RoundDuration
	case StateRoundEnd:
		d = ts.BetweenRoundsDelay
	case StateFightComplete:
		d = ts.PostFightDelay
	default:
		return 0
	}
	return time.Duration(float64(d) / ts.SpeedMultiplier)
}
