package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"livecard/internal/model"
)

// MemoryRepository is an in-memory Store. Records are copied in and out so
// callers never share state with the repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	events   map[string]*model.Event
	fights   map[string]*model.Fight
	userData map[string]model.UserRecord // keyed by record id
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:   make(map[string]*model.Event),
		fights:   make(map[string]*model.Fight),
		userData: make(map[string]model.UserRecord),
	}
}

var _ Store = (*MemoryRepository)(nil)

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) InsertEvent(_ context.Context, e *model.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := copyEvent(e)
	r.events[e.ID] = &ev
	return nil
}

func (r *MemoryRepository) InsertFight(_ context.Context, f *model.Fight) error {
	if err := validateFight(f); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[f.EventID]; !ok {
		return ErrNotFound
	}
	fc := copyFight(f)
	r.fights[f.ID] = &fc
	return nil
}

func (r *MemoryRepository) InsertUserRecord(_ context.Context, rec *model.UserRecord) error {
	if err := validateUserRecord(rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fights[rec.FightID]; !ok {
		return ErrNotFound
	}
	stored := *rec
	if stored.ID == "" {
		stored.ID = newRecordID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.userData[stored.ID] = stored
	return nil
}

func (r *MemoryRepository) GetEvent(_ context.Context, eventID string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	ev := copyEvent(e)
	return &ev, nil
}

func (r *MemoryRepository) ListFights(_ context.Context, eventID string) ([]model.Fight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	return r.fightsOf(eventID), nil
}

// fightsOf must be called with the lock held.
func (r *MemoryRepository) fightsOf(eventID string) []model.Fight {
	var result []model.Fight
	for _, f := range r.fights {
		if f.EventID == eventID {
			result = append(result, copyFight(f))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OrderOnCard != result[j].OrderOnCard {
			return result[i].OrderOnCard < result[j].OrderOnCard
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (r *MemoryRepository) updateEvent(eventID string, fn func(e *model.Event)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return ErrNotFound
	}
	fn(e)
	return nil
}

func (r *MemoryRepository) updateFight(fightID string, fn func(f *model.Fight)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fights[fightID]
	if !ok {
		return ErrNotFound
	}
	fn(f)
	return nil
}

func (r *MemoryRepository) MarkEventStarted(_ context.Context, eventID string) error {
	return r.updateEvent(eventID, func(e *model.Event) {
		e.HasStarted = true
	})
}

func (r *MemoryRepository) CompleteEvent(_ context.Context, eventID string, method model.CompletionMethod) error {
	if !method.Valid() {
		return ErrInvalidInput
	}
	return r.updateEvent(eventID, func(e *model.Event) {
		e.IsComplete = true
		e.CompletionMethod = &method
	})
}

func (r *MemoryRepository) StartFight(_ context.Context, fightID string) error {
	return r.updateFight(fightID, func(f *model.Fight) {
		f.HasStarted = true
		f.CompletedRounds = ptr(0)
	})
}

func (r *MemoryRepository) StartRound(_ context.Context, fightID string, round int) error {
	return r.updateFight(fightID, func(f *model.Fight) {
		f.CurrentRound = ptr(round)
	})
}

func (r *MemoryRepository) EndRound(_ context.Context, fightID string, completedRounds int) error {
	return r.updateFight(fightID, func(f *model.Fight) {
		f.CurrentRound = nil
		f.CompletedRounds = ptr(completedRounds)
	})
}

func (r *MemoryRepository) CompleteFight(_ context.Context, fightID string, result model.FightResult) error {
	return r.updateFight(fightID, func(f *model.Fight) {
		f.IsComplete = true
		f.CurrentRound = nil
		f.CompletedRounds = ptr(result.CompletedRounds)
		f.Winner = copyPtr(result.Winner)
		f.Method = copyPtr(result.Method)
		f.WinningRound = copyPtr(result.WinningRound)
		f.WinningTime = copyPtr(result.WinningTime)
	})
}

func (r *MemoryRepository) ForceCompleteEvent(_ context.Context, eventID string, method model.CompletionMethod) (int, error) {
	if !method.Valid() {
		return 0, ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	e.IsComplete = true
	e.CompletionMethod = &method

	closed := 0
	for _, f := range r.fights {
		if f.EventID == eventID && !f.IsComplete {
			f.IsComplete = true
			f.CurrentRound = nil
			closed++
		}
	}
	return closed, nil
}

func (r *MemoryRepository) ListLiveEvents(_ context.Context) ([]model.EventCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var cards []model.EventCard
	for _, e := range r.events {
		if e.HasStarted && !e.IsComplete {
			cards = append(cards, model.EventCard{Event: copyEvent(e), Fights: r.fightsOf(e.ID)})
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].Event.Date.Before(cards[j].Event.Date)
	})
	return cards, nil
}

func (r *MemoryRepository) ListStaleEvents(_ context.Context, scheduledBefore time.Time) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []model.Event
	for _, e := range r.events {
		if !e.HasStarted && !e.IsComplete && e.Date.Before(scheduledBefore) {
			result = append(result, copyEvent(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (r *MemoryRepository) ResetEvent(_ context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return model.ResetSummary{}, ErrNotFound
	}
	e.HasStarted = false
	e.IsComplete = false
	e.CompletionMethod = nil

	summary := model.ResetSummary{Deleted: make(map[model.UserDataKind]int)}
	fightIDs := make(map[string]bool)
	for _, f := range r.fights {
		if f.EventID != eventID {
			continue
		}
		fightIDs[f.ID] = true
		resetFight(f)
		summary.FightsReset++
	}

	for _, kind := range opts.Kinds() {
		summary.Deleted[kind] = 0
		for id, rec := range r.userData {
			if rec.Kind == kind && fightIDs[rec.FightID] {
				delete(r.userData, id)
				summary.Deleted[kind]++
			}
		}
	}
	return summary, nil
}

func (r *MemoryRepository) CountUserData(_ context.Context, eventID string) (map[model.UserDataKind]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	counts := make(map[model.UserDataKind]int)
	for _, kind := range model.UserDataKinds {
		counts[kind] = 0
	}
	for _, rec := range r.userData {
		if f, ok := r.fights[rec.FightID]; ok && f.EventID == eventID {
			counts[rec.Kind]++
		}
	}
	return counts, nil
}

func resetFight(f *model.Fight) {
	f.HasStarted = false
	f.IsComplete = false
	f.CurrentRound = nil
	f.CompletedRounds = nil
	f.Winner = nil
	f.Method = nil
	f.WinningRound = nil
	f.WinningTime = nil
}

func copyEvent(e *model.Event) model.Event {
	c := *e
	c.MainStartTime = copyPtr(e.MainStartTime)
	c.CompletionMethod = copyPtr(e.CompletionMethod)
	return c
}

func copyFight(f *model.Fight) model.Fight {
	c := *f
	c.CurrentRound = copyPtr(f.CurrentRound)
	c.CompletedRounds = copyPtr(f.CompletedRounds)
	c.Winner = copyPtr(f.Winner)
	c.Method = copyPtr(f.Method)
	c.WinningRound = copyPtr(f.WinningRound)
	c.WinningTime = copyPtr(f.WinningTime)
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func newRecordID() string {
	return uuid.NewString()
}

func ptr[T any](v T) *T {
	return &v
}
