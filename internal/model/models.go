package model

import "time"

// CompletionMethod records how an event was determined to be finished.
type CompletionMethod string

const (
	CompletionAllFights    CompletionMethod = "all_fights"
	CompletionTimeout12h   CompletionMethod = "timeout_12hr"
	CompletionTimeoutSmart CompletionMethod = "timeout_smart"
	CompletionManual       CompletionMethod = "manual"
	CompletionScraper      CompletionMethod = "scraper"
)

// Valid reports whether m is one of the known completion methods.
func (m CompletionMethod) Valid() bool {
	switch m {
	case CompletionAllFights, CompletionTimeout12h, CompletionTimeoutSmart, CompletionManual, CompletionScraper:
		return true
	}
	return false
}

// Event is a card of fights with a scheduled date.
type Event struct {
	ID               string            `db:"id" json:"id"`
	Name             string            `db:"name" json:"name"`
	Date             time.Time         `db:"date" json:"date"`
	MainStartTime    *time.Time        `db:"main_start_time" json:"mainStartTime"`
	HasStarted       bool              `db:"has_started" json:"hasStarted"`
	IsComplete       bool              `db:"is_complete" json:"isComplete"`
	CompletionMethod *CompletionMethod `db:"completion_method" json:"completionMethod"`
}

// StartReference is the instant live-event timeouts are measured from:
// the main card start when one is designated, the scheduled date otherwise.
func (e *Event) StartReference() time.Time {
	if e.MainStartTime != nil {
		return *e.MainStartTime
	}
	return e.Date
}

// Fight is one bout within an event. OrderOnCard 1 is the main event.
type Fight struct {
	ID              string  `db:"id" json:"id"`
	EventID         string  `db:"event_id" json:"eventId"`
	OrderOnCard     int     `db:"order_on_card" json:"orderOnCard"`
	Fighter1ID      string  `db:"fighter1_id" json:"fighter1Id"`
	Fighter2ID      string  `db:"fighter2_id" json:"fighter2Id"`
	IsTitle         bool    `db:"is_title" json:"isTitle"`
	ScheduledRounds int     `db:"scheduled_rounds" json:"scheduledRounds"`
	HasStarted      bool    `db:"has_started" json:"hasStarted"`
	IsComplete      bool    `db:"is_complete" json:"isComplete"`
	CurrentRound    *int    `db:"current_round" json:"currentRound"`
	CompletedRounds *int    `db:"completed_rounds" json:"completedRounds"`
	Winner          *string `db:"winner" json:"winner"`
	Method          *string `db:"method" json:"method"`
	WinningRound    *int    `db:"winning_round" json:"winningRound"`
	WinningTime     *string `db:"winning_time" json:"winningTime"`
}

// EventCard is an event together with its fights.
type EventCard struct {
	Event  Event   `json:"event"`
	Fights []Fight `json:"fights"`
}

// FightResult is what gets written when a fight ends. Nil fields stay unset,
// which is how a fight closed without a recorded result is represented.
type FightResult struct {
	CompletedRounds int
	Winner          *string
	Method          *string
	WinningRound    *int
	WinningTime     *string
}

// UserDataKind names one of the user-generated collections attached to fights.
type UserDataKind string

const (
	UserDataPredictions UserDataKind = "predictions"
	UserDataRatings     UserDataKind = "ratings"
	UserDataRoundScores UserDataKind = "round_scores"
	UserDataReviews     UserDataKind = "reviews"
)

// UserDataKinds lists every collection in deletion order.
var UserDataKinds = []UserDataKind{UserDataPredictions, UserDataRatings, UserDataRoundScores, UserDataReviews}

// UserRecord is a single prediction, rating, round score or review.
type UserRecord struct {
	ID        string       `db:"id" json:"id"`
	Kind      UserDataKind `db:"-" json:"kind"`
	FightID   string       `db:"fight_id" json:"fightId"`
	UserID    string       `db:"user_id" json:"userId"`
	Value     string       `db:"value" json:"value"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
}

// ResetOptions selects which user data to delete along with an event reset.
type ResetOptions struct {
	ClearUserData    bool `json:"clearUserData,omitempty"`
	ClearPredictions bool `json:"clearPredictions,omitempty"`
	ClearRatings     bool `json:"clearRatings,omitempty"`
	ClearRoundScores bool `json:"clearRoundScores,omitempty"`
	ClearReviews     bool `json:"clearReviews,omitempty"`
}

// Kinds returns the collections these options delete.
func (o ResetOptions) Kinds() []UserDataKind {
	var kinds []UserDataKind
	if o.ClearUserData || o.ClearPredictions {
		kinds = append(kinds, UserDataPredictions)
	}
	if o.ClearUserData || o.ClearRatings {
		kinds = append(kinds, UserDataRatings)
	}
	if o.ClearUserData || o.ClearRoundScores {
		kinds = append(kinds, UserDataRoundScores)
	}
	if o.ClearUserData || o.ClearReviews {
		kinds = append(kinds, UserDataReviews)
	}
	return kinds
}

// ResetSummary reports what an event reset touched.
type ResetSummary struct {
	FightsReset int                  `json:"fightsReset"`
	Deleted     map[UserDataKind]int `json:"deleted,omitempty"`
}
