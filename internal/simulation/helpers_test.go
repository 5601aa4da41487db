package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"livecard/internal/database"
	"livecard/internal/model"
	"livecard/internal/outcome"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) pending() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest pending timer and reports whether one existed.
func (c *manualClock) fireNext() bool {
	c.mu.Lock()
	var next *manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.mu.Unlock()

	next.fn()
	return true
}

// scriptedOutcomes returns queued outcomes, then Decisions.
type scriptedOutcomes struct {
	queue  []outcome.Outcome
	chance bool
}

func (s *scriptedOutcomes) Generate(scheduledRounds int) outcome.Outcome {
	if len(s.queue) == 0 {
		return outcome.Outcome{Method: outcome.MethodDecision, Round: scheduledRounds, Time: outcome.DecisionTime}
	}
	o := s.queue[0]
	s.queue = s.queue[1:]
	return o
}

func (s *scriptedOutcomes) SelectWinner(fighter1, _ string) string { return fighter1 }

func (s *scriptedOutcomes) Chance(float64) bool { return s.chance }

type fightSpec struct {
	rounds  int
	isTitle bool
}

// seedEvent stores an event whose fights are given in card order, main event first.
func seedEvent(t *testing.T, repo *database.MemoryRepository, eventID string, fights ...fightSpec) []string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.InsertEvent(ctx, &model.Event{
		ID:   eventID,
		Name: "Fight Night " + eventID,
		Date: time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC),
	}))
	ids := make([]string, len(fights))
	for i, f := range fights {
		ids[i] = fmt.Sprintf("%s-fight-%d", eventID, i+1)
		require.NoError(t, repo.InsertFight(ctx, &model.Fight{
			ID:              ids[i],
			EventID:         eventID,
			OrderOnCard:     i + 1,
			Fighter1ID:      ids[i] + "-red",
			Fighter2ID:      ids[i] + "-blue",
			IsTitle:         f.isTitle,
			ScheduledRounds: f.rounds,
		}))
	}
	return ids
}

func fightByID(t *testing.T, repo *database.MemoryRepository, eventID, fightID string) model.Fight {
	t.Helper()
	fights, err := repo.ListFights(context.Background(), eventID)
	require.NoError(t, err)
	for _, f := range fights {
		if f.ID == fightID {
			return f
		}
	}
	t.Fatalf("fight %s not found", fightID)
	return model.Fight{}
}

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	args := m.Called(ctx, eventID)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

func (m *MockStore) ListFights(ctx context.Context, eventID string) ([]model.Fight, error) {
	args := m.Called(ctx, eventID)
	f, _ := args.Get(0).([]model.Fight)
	return f, args.Error(1)
}

func (m *MockStore) MarkEventStarted(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *MockStore) CompleteEvent(ctx context.Context, eventID string, method model.CompletionMethod) error {
	return m.Called(ctx, eventID, method).Error(0)
}

func (m *MockStore) StartFight(ctx context.Context, fightID string) error {
	return m.Called(ctx, fightID).Error(0)
}

func (m *MockStore) StartRound(ctx context.Context, fightID string, round int) error {
	return m.Called(ctx, fightID, round).Error(0)
}

func (m *MockStore) EndRound(ctx context.Context, fightID string, completedRounds int) error {
	return m.Called(ctx, fightID, completedRounds).Error(0)
}

func (m *MockStore) CompleteFight(ctx context.Context, fightID string, result model.FightResult) error {
	return m.Called(ctx, fightID, result).Error(0)
}

func (m *MockStore) ResetEvent(ctx context.Context, eventID string, opts model.ResetOptions) (model.ResetSummary, error) {
	args := m.Called(ctx, eventID, opts)
	s, _ := args.Get(0).(model.ResetSummary)
	return s, args.Error(1)
}

var _ Store = (*MockStore)(nil)
