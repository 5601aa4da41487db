package simulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"livecard/internal/database"
	"livecard/internal/lease"
	"livecard/internal/model"
	"livecard/internal/observability"
	"livecard/internal/outcome"
)

type fakeGuard struct {
	mu        sync.Mutex
	deny       bool
	refreshErr error
	held       string
	acquired  int
	refreshed int
	released  int
}

func (g *fakeGuard) Acquire(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deny {
		return false, nil
	}
	g.held = eventID
	g.acquired++
	return true, nil
}

func (g *fakeGuard) Refresh(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshed++
	return g.refreshErr
}

func (g *fakeGuard) Release(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = ""
	g.released++
	return nil
}

func newTestController(store Store, outcomes Outcomes, opts ...Option) (*Controller, *manualClock) {
	clock := &manualClock{}
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewController(testLogger(), store, outcomes, opts...), clock
}

func TestController_FullRun(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	ids := seedEvent(t, repo, "full", fightSpec{5, true}, fightSpec{3, false})

	var mu sync.Mutex
	var observed []Status
	metrics := observability.NewMetrics("test", nil)
	c, clock := newTestController(repo, outcome.NewSeededGenerator(42),
		WithMetrics(metrics),
		WithObserver(func(s Status) {
			mu.Lock()
			observed = append(observed, s)
			mu.Unlock()
		}),
	)

	status, err := c.Start(ctx, "full", nil, true)
	require.NoError(t, err)
	assert.True(t, status.IsRunning)
	assert.Equal(t, StateEventPending, status.CurrentState)
	assert.Equal(t, 2, status.TotalFights)
	require.Len(t, clock.pending(), 1)
	assert.Equal(t, 5*time.Second, clock.pending()[0].delay)

	for i := 0; i < 200 && clock.fireNext(); i++ {
	}

	final := c.Status()
	assert.False(t, final.IsRunning)
	assert.Equal(t, StateStopped, final.CurrentState)
	assert.Empty(t, clock.pending())

	for _, id := range ids {
		f := fightByID(t, repo, "full", id)
		assert.True(t, f.IsComplete, id)
		assert.NotNil(t, f.Winner, id)
		assert.NotNil(t, f.Method, id)
	}
	event, err := repo.GetEvent(ctx, "full")
	require.NoError(t, err)
	assert.True(t, event.IsComplete)
	assert.Equal(t, model.CompletionAllFights, *event.CompletionMethod)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	last := observed[len(observed)-1]
	assert.False(t, last.IsRunning)
	assert.Equal(t, StateEventComplete, last.CurrentState)
	assert.Equal(t, Progress{Completed: 2, Total: 2}, last.Progress)
}

func TestController_StartWhileActive(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "first", fightSpec{3, false})
	seedEvent(t, repo, "second", fightSpec{3, false})
	c, clock := newTestController(repo, &scriptedOutcomes{})

	_, err := c.Start(ctx, "first", nil, true)
	require.NoError(t, err)
	require.True(t, clock.fireNext())
	before := c.Status()

	_, err = c.Start(ctx, "second", nil, true)
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, before, c.Status())
	assert.Len(t, clock.pending(), 1)

	second, err := repo.GetEvent(ctx, "second")
	require.NoError(t, err)
	assert.False(t, second.HasStarted)
}

func TestController_StartErrors(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "evt", fightSpec{3, false})

	t.Run("unknown event", func(t *testing.T) {
		c, clock := newTestController(repo, &scriptedOutcomes{})
		_, err := c.Start(ctx, "missing", nil, true)
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.Equal(t, StateStopped, c.Status().CurrentState)
		assert.Empty(t, clock.pending())
	})

	t.Run("invalid time scale", func(t *testing.T) {
		c, _ := newTestController(repo, &scriptedOutcomes{})
		speed := 0.0
		_, err := c.Start(ctx, "evt", &TimeScaleOverrides{SpeedMultiplier: &speed}, true)
		assert.ErrorIs(t, err, ErrInvalidTimeScale)
	})

	t.Run("lease held elsewhere", func(t *testing.T) {
		guard := &fakeGuard{deny: true}
		c, clock := newTestController(repo, &scriptedOutcomes{}, WithGuard(guard))
		_, err := c.Start(ctx, "evt", nil, true)
		assert.ErrorIs(t, err, ErrLeaseHeld)
		assert.False(t, c.Status().IsRunning)
		assert.Empty(t, clock.pending())
	})
}

func TestController_NoSession(t *testing.T) {
	c, _ := newTestController(database.NewMemoryRepository(), &scriptedOutcomes{})

	_, err := c.Pause()
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.Resume()
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.SkipToNext(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, c.Stop(context.Background()), ErrNoSession)

	assert.Equal(t, Status{CurrentState: StateStopped}, c.Status())
}

func TestController_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "p", fightSpec{3, false})
	c, clock := newTestController(repo, &scriptedOutcomes{})

	_, err := c.Start(ctx, "p", nil, true)
	require.NoError(t, err)
	require.True(t, clock.fireNext())
	require.True(t, clock.fireNext())
	stale := clock.pending()[0]

	paused, err := c.Pause()
	require.NoError(t, err)
	assert.True(t, paused.IsPaused)
	assert.Empty(t, clock.pending())

	first := c.Status()
	second := c.Status()
	assert.Equal(t, first.CurrentState, second.CurrentState)
	assert.Equal(t, first.CurrentFightIndex, second.CurrentFightIndex)
	assert.Equal(t, first.CurrentRound, second.CurrentRound)
	assert.Equal(t, StateFightStarting, first.CurrentState)

	_, err = c.Pause()
	assert.NoError(t, err)

	resumed, err := c.Resume()
	require.NoError(t, err)
	assert.False(t, resumed.IsPaused)
	require.Len(t, clock.pending(), 1)
	assert.Equal(t, 2*time.Second, clock.pending()[0].delay)

	// The callback of the cancelled timer must not advance the session.
	stale.fn()
	assert.Equal(t, StateFightStarting, c.Status().CurrentState)

	_, err = c.Resume()
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestController_SkipToNext(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	ids := seedEvent(t, repo, "skip", fightSpec{3, false})
	c, clock := newTestController(repo, &scriptedOutcomes{})

	_, err := c.Start(ctx, "skip", nil, true)
	require.NoError(t, err)

	status, err := c.SkipToNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateEventStarted, status.CurrentState)
	require.Len(t, clock.pending(), 1)
	assert.Equal(t, 10*time.Second, clock.pending()[0].delay)

	t.Run("while paused stays paused", func(t *testing.T) {
		_, err := c.Pause()
		require.NoError(t, err)

		status, err := c.SkipToNext(ctx)
		require.NoError(t, err)
		assert.True(t, status.IsPaused)
		assert.Equal(t, StateFightStarting, status.CurrentState)
		assert.Equal(t, ids[0], status.CurrentFightID)
		assert.Empty(t, clock.pending())
	})
}

func TestController_Stop(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "stop", fightSpec{3, false})
	guard := &fakeGuard{}
	c, clock := newTestController(repo, &scriptedOutcomes{}, WithGuard(guard))

	_, err := c.Start(ctx, "stop", nil, true)
	require.NoError(t, err)
	require.True(t, clock.fireNext())
	assert.Equal(t, "stop", guard.held)
	assert.Equal(t, 1, guard.refreshed)

	require.NoError(t, c.Stop(ctx))
	assert.Empty(t, clock.pending())
	assert.Equal(t, StateStopped, c.Status().CurrentState)
	assert.Equal(t, 1, guard.released)

	event, err := repo.GetEvent(ctx, "stop")
	require.NoError(t, err)
	assert.True(t, event.HasStarted, "stop leaves stored progress alone")

	_, err = c.Start(ctx, "stop", nil, true)
	assert.NoError(t, err)
	assert.Equal(t, 2, guard.acquired)
}

func TestController_TransitionFailureFreezesSession(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	event := &model.Event{ID: "evt", Name: "Evt"}
	fights := []model.Fight{{ID: "f1", EventID: "evt", OrderOnCard: 1, ScheduledRounds: 3}}
	store.On("GetEvent", mock.Anything, "evt").Return(event, nil)
	store.On("ListFights", mock.Anything, "evt").Return(fights, nil)
	store.On("MarkEventStarted", mock.Anything, "evt").Return(errors.New("connection refused"))

	c, clock := newTestController(store, &scriptedOutcomes{})
	_, err := c.Start(ctx, "evt", nil, true)
	require.NoError(t, err)

	require.True(t, clock.fireNext())
	status := c.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, StateEventPending, status.CurrentState)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Empty(t, clock.pending())

	_, err = c.SkipToNext(ctx)
	assert.Error(t, err)
	assert.Empty(t, clock.pending())

	require.NoError(t, c.Stop(ctx))
	store.AssertExpectations(t)
}

func TestController_LeaseLostFreezesSession(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "lost", fightSpec{3, false})
	guard := &fakeGuard{refreshErr: lease.ErrLeaseLost}
	c, clock := newTestController(repo, &scriptedOutcomes{}, WithGuard(guard))

	_, err := c.Start(ctx, "lost", nil, true)
	require.NoError(t, err)

	require.True(t, clock.fireNext())
	status := c.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, StateEventStarted, status.CurrentState)
	assert.Contains(t, status.LastError, "lease lost")
	assert.Empty(t, clock.pending())

	_, err = c.SkipToNext(ctx)
	assert.ErrorIs(t, err, lease.ErrLeaseLost)
	assert.Empty(t, clock.pending())

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 1, guard.released)
}

func TestController_LeaseRefreshErrorKeepsRunning(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "flaky", fightSpec{3, false})
	guard := &fakeGuard{refreshErr: errors.New("i/o timeout")}
	c, clock := newTestController(repo, &scriptedOutcomes{}, WithGuard(guard))

	_, err := c.Start(ctx, "flaky", nil, true)
	require.NoError(t, err)

	require.True(t, clock.fireNext())
	status := c.Status()
	assert.Empty(t, status.LastError)
	assert.Len(t, clock.pending(), 1)
}

func TestController_Reset(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	ids := seedEvent(t, repo, "reset", fightSpec{3, false}, fightSpec{3, false})
	for _, id := range ids {
		for _, kind := range model.UserDataKinds {
			require.NoError(t, repo.InsertUserRecord(ctx, &model.UserRecord{Kind: kind, FightID: id, UserID: "u1", Value: "v"}))
		}
	}

	c, clock := newTestController(repo, &scriptedOutcomes{})
	_, err := c.Start(ctx, "reset", nil, true)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.True(t, clock.fireNext())
	}

	summary, err := c.Reset(ctx, "reset", model.ResetOptions{ClearUserData: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FightsReset)
	for _, kind := range model.UserDataKinds {
		assert.Equal(t, 2, summary.Deleted[kind], kind)
	}

	assert.False(t, c.Status().IsRunning)
	assert.Empty(t, clock.pending())

	counts, err := repo.CountUserData(ctx, "reset")
	require.NoError(t, err)
	for _, kind := range model.UserDataKinds {
		assert.Zero(t, counts[kind], kind)
	}
	for _, id := range ids {
		f := fightByID(t, repo, "reset", id)
		assert.False(t, f.HasStarted)
		assert.Nil(t, f.Winner)
		assert.Nil(t, f.Method)
		assert.Nil(t, f.WinningRound)
		assert.Nil(t, f.WinningTime)
	}

	_, err = c.Reset(ctx, "missing", model.ResetOptions{})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestController_ResetOtherEventKeepsSession(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	seedEvent(t, repo, "running", fightSpec{3, false})
	seedEvent(t, repo, "other", fightSpec{3, false})
	c, clock := newTestController(repo, &scriptedOutcomes{})

	_, err := c.Start(ctx, "running", nil, true)
	require.NoError(t, err)

	_, err = c.Reset(ctx, "other", model.ResetOptions{})
	require.NoError(t, err)
	assert.True(t, c.Status().IsRunning)
	assert.Len(t, clock.pending(), 1)
}
