package simulation

import (
	"sort"

	"livecard/internal/model"
)

// FightDescriptor is the part of a fight the simulator needs.
type FightDescriptor struct {
	ID              string
	Fighter1ID      string
	Fighter2ID      string
	ScheduledRounds int
	IsTitle         bool
}

// Session is the in-memory progress of one simulated event. Fights are held
// in simulation order, so the main event comes last.
type Session struct {
	EventID              string
	EventName            string
	Fights               []FightDescriptor
	State                State
	FightIndex           int
	Round                int
	TimeScale            TimeScale
	AutoGenerateOutcomes bool
}

// NewSession builds a session in EVENT_PENDING for the given card.
func NewSession(event *model.Event, fights []model.Fight, ts TimeScale, autoGenerate bool) *Session {
	ordered := make([]model.Fight, len(fights))
	copy(ordered, fights)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderOnCard > ordered[j].OrderOnCard
	})

	descs := make([]FightDescriptor, 0, len(ordered))
	for _, f := range ordered {
		descs = append(descs, FightDescriptor{
			ID:              f.ID,
			Fighter1ID:      f.Fighter1ID,
			Fighter2ID:      f.Fighter2ID,
			ScheduledRounds: f.ScheduledRounds,
			IsTitle:         f.IsTitle,
		})
	}

	return &Session{
		EventID:              event.ID,
		EventName:            event.Name,
		Fights:               descs,
		State:                StateEventPending,
		TimeScale:            ts,
		AutoGenerateOutcomes: autoGenerate,
	}
}

// CurrentFight returns the fight at FightIndex, if any remain.
func (s *Session) CurrentFight() (FightDescriptor, bool) {
	if s.FightIndex < 0 || s.FightIndex >= len(s.Fights) {
		return FightDescriptor{}, false
	}
	return s.Fights[s.FightIndex], true
}
