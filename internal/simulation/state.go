package simulation

// State is a step of the event progression.
type State string

const (
	StateEventPending    State = "EVENT_PENDING"
	StateEventStarted    State = "EVENT_STARTED"
	StateFightStarting   State = "FIGHT_STARTING"
	StateFightInProgress State = "FIGHT_IN_PROGRESS"
	StateRoundEnd        State = "ROUND_END"
	StateFightComplete   State = "FIGHT_COMPLETE"
	StateBetweenFights   State = "BETWEEN_FIGHTS"
	StateEventComplete   State = "EVENT_COMPLETE"

	// StatePaused and StateStopped are control states. A paused session keeps
	// reporting its frozen state; StateStopped is reported when nothing runs.
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

// inFight reports whether a fight is on at this state.
func (s State) inFight() bool {
	switch s {
	case StateFightStarting, StateFightInProgress, StateRoundEnd, StateFightComplete:
		return true
	}
	return false
}
