package database

import (
	"context"
	"errors"
	"time"

	"livecard/internal/model"
)

var (
	// ErrNotFound is returned when a requested event or fight does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository defines the durable event and fight operations used by the
// simulator and the completion detector. Every mutating call is a single
// atomic update, so readers never observe a half-applied transition.
type Repository interface {
	// GetEvent returns an event by id. Returns ErrNotFound if missing.
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)

	// ListFights returns an event's fights ordered by card position, main event first.
	ListFights(ctx context.Context, eventID string) ([]model.Fight, error)

	// MarkEventStarted sets the event's has-started flag.
	MarkEventStarted(ctx context.Context, eventID string) error

	// CompleteEvent marks the event complete with the given method. Fights are untouched.
	CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error

	// StartFight marks a fight started with zero completed rounds.
	StartFight(ctx context.Context, fightID string) error

	// StartRound records round as the fight's live round.
	StartRound(ctx context.Context, fightID string, round int) error

	// EndRound clears the live round and records the completed round count.
	EndRound(ctx context.Context, fightID string, completedRounds int) error

	// CompleteFight marks a fight complete and writes its result.
	CompleteFight(ctx context.Context, fightID string, result model.FightResult) error

	// ForceCompleteEvent marks the event complete and closes every incomplete
	// fight without a result. Returns the number of fights closed.
	ForceCompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) (int, error)

	// ListLiveEvents returns started, incomplete events with their fights.
	ListLiveEvents(ctx context.Context) ([]model.EventCard, error)

	// ListStaleEvents returns never-started, incomplete events scheduled before the cutoff.
	ListStaleEvents(ctx context.Context, scheduledBefore time.Time) ([]model.Event, error)

	// ResetEvent clears the event's progress and its fights' results, deleting
	// the user data selected by opts.
	ResetEvent(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error)

	// CountUserData counts user records attached to the event's fights, by kind.
	CountUserData(ctx context.Context, eventID string) (map[model.UserDataKind]int, error)
}

// Seeder inserts the records this core otherwise treats as pre-existing.
// Used by demo seeding and tests.
type Seeder interface {
	InsertEvent(ctx context.Context, e *model.Event) error
	InsertFight(ctx context.Context, f *model.Fight) error
	InsertUserRecord(ctx context.Context, r *model.UserRecord) error
}

// Store is a Repository that can also be seeded and closed.
type Store interface {
	Repository
	Seeder
	Close() error
}

var userDataTables = map[model.UserDataKind]string{
	model.UserDataPredictions: "fight_predictions",
	model.UserDataRatings:     "fight_ratings",
	model.UserDataRoundScores: "round_scores",
	model.UserDataReviews:     "fight_reviews",
}

func validateEvent(e *model.Event) error {
	if e == nil || e.ID == "" || e.Name == "" {
		return ErrInvalidInput
	}
	if e.CompletionMethod != nil && !e.CompletionMethod.Valid() {
		return ErrInvalidInput
	}
	return nil
}

func validateFight(f *model.Fight) error {
	if f == nil || f.ID == "" || f.EventID == "" || f.ScheduledRounds < 1 {
		return ErrInvalidInput
	}
	return nil
}

func validateUserRecord(r *model.UserRecord) error {
	if r == nil || r.FightID == "" {
		return ErrInvalidInput
	}
	if _, ok := userDataTables[r.Kind]; !ok {
		return ErrInvalidInput
	}
	return nil
}
