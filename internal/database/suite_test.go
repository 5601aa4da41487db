package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecard/internal/model"
)

// seedCard inserts an event with the given number of fights (order 1..n) and
// returns the fight ids in card order.
func seedCard(t *testing.T, s Store, eventID string, date time.Time, fights int) []string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.InsertEvent(ctx, &model.Event{ID: eventID, Name: "Event " + eventID, Date: date}))

	ids := make([]string, fights)
	for i := 0; i < fights; i++ {
		ids[i] = fmt.Sprintf("%s-f%d", eventID, i+1)
		rounds := 3
		if i == 0 {
			rounds = 5
		}
		require.NoError(t, s.InsertFight(ctx, &model.Fight{
			ID:              ids[i],
			EventID:         eventID,
			OrderOnCard:     i + 1,
			Fighter1ID:      ids[i] + "-a",
			Fighter2ID:      ids[i] + "-b",
			IsTitle:         i == 0,
			ScheduledRounds: rounds,
		}))
	}
	return ids
}

// runRepositorySuite exercises the Store contract against any implementation.
func runRepositorySuite(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("get event not found", func(t *testing.T) {
		_, err := s.GetEvent(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.ListFights(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insert validates input", func(t *testing.T) {
		assert.ErrorIs(t, s.InsertEvent(ctx, &model.Event{ID: "no-name"}), ErrInvalidInput)
		assert.ErrorIs(t, s.InsertFight(ctx, &model.Fight{ID: "f", EventID: "e"}), ErrInvalidInput)
		assert.ErrorIs(t, s.InsertUserRecord(ctx, &model.UserRecord{FightID: "f", Kind: "bogus"}), ErrInvalidInput)
	})

	t.Run("event and fights round trip", func(t *testing.T) {
		main := now.Add(2 * time.Hour)
		require.NoError(t, s.InsertEvent(ctx, &model.Event{ID: "rt", Name: "Round Trip", Date: now, MainStartTime: &main}))
		require.NoError(t, s.InsertFight(ctx, &model.Fight{
			ID: "rt-2", EventID: "rt", OrderOnCard: 2, Fighter1ID: "a", Fighter2ID: "b", ScheduledRounds: 3,
		}))
		require.NoError(t, s.InsertFight(ctx, &model.Fight{
			ID: "rt-1", EventID: "rt", OrderOnCard: 1, Fighter1ID: "c", Fighter2ID: "d", ScheduledRounds: 5, IsTitle: true,
		}))

		e, err := s.GetEvent(ctx, "rt")
		require.NoError(t, err)
		assert.Equal(t, "Round Trip", e.Name)
		assert.True(t, e.Date.Equal(now))
		require.NotNil(t, e.MainStartTime)
		assert.True(t, e.MainStartTime.Equal(main))
		assert.False(t, e.HasStarted)
		assert.Nil(t, e.CompletionMethod)

		fights, err := s.ListFights(ctx, "rt")
		require.NoError(t, err)
		require.Len(t, fights, 2)
		assert.Equal(t, "rt-1", fights[0].ID, "main event first")
		assert.True(t, fights[0].IsTitle)
		assert.Equal(t, 5, fights[0].ScheduledRounds)
		assert.Nil(t, fights[0].CurrentRound)
		assert.Nil(t, fights[0].CompletedRounds)
	})

	t.Run("fight progression writes", func(t *testing.T) {
		ids := seedCard(t, s, "prog", now, 1)
		fightID := ids[0]

		require.NoError(t, s.MarkEventStarted(ctx, "prog"))
		require.NoError(t, s.StartFight(ctx, fightID))
		require.NoError(t, s.StartRound(ctx, fightID, 1))

		fights, err := s.ListFights(ctx, "prog")
		require.NoError(t, err)
		assert.True(t, fights[0].HasStarted)
		require.NotNil(t, fights[0].CurrentRound)
		assert.Equal(t, 1, *fights[0].CurrentRound)
		require.NotNil(t, fights[0].CompletedRounds)
		assert.Equal(t, 0, *fights[0].CompletedRounds)

		require.NoError(t, s.EndRound(ctx, fightID, 1))
		fights, err = s.ListFights(ctx, "prog")
		require.NoError(t, err)
		assert.Nil(t, fights[0].CurrentRound)
		assert.Equal(t, 1, *fights[0].CompletedRounds)

		winner, method, round, clock := "prog-f1-a", "KO", 1, "2:13"
		require.NoError(t, s.CompleteFight(ctx, fightID, model.FightResult{
			CompletedRounds: 1, Winner: &winner, Method: &method, WinningRound: &round, WinningTime: &clock,
		}))
		fights, err = s.ListFights(ctx, "prog")
		require.NoError(t, err)
		assert.True(t, fights[0].IsComplete)
		assert.Equal(t, winner, *fights[0].Winner)
		assert.Equal(t, method, *fights[0].Method)
		assert.Equal(t, round, *fights[0].WinningRound)
		assert.Equal(t, clock, *fights[0].WinningTime)

		require.NoError(t, s.CompleteEvent(ctx, "prog", model.CompletionAllFights))
		e, err := s.GetEvent(ctx, "prog")
		require.NoError(t, err)
		assert.True(t, e.IsComplete)
		require.NotNil(t, e.CompletionMethod)
		assert.Equal(t, model.CompletionAllFights, *e.CompletionMethod)
	})

	t.Run("updates on missing rows", func(t *testing.T) {
		assert.ErrorIs(t, s.MarkEventStarted(ctx, "missing"), ErrNotFound)
		assert.ErrorIs(t, s.StartFight(ctx, "missing"), ErrNotFound)
		assert.ErrorIs(t, s.CompleteEvent(ctx, "missing", model.CompletionManual), ErrNotFound)
		assert.ErrorIs(t, s.CompleteEvent(ctx, "prog", model.CompletionMethod("later")), ErrInvalidInput)
		_, err := s.ForceCompleteEvent(ctx, "missing", model.CompletionManual)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("live and stale listings", func(t *testing.T) {
		seedCard(t, s, "live", now.Add(-time.Hour), 2)
		require.NoError(t, s.MarkEventStarted(ctx, "live"))
		seedCard(t, s, "stale", now.Add(-20*time.Hour), 0)
		seedCard(t, s, "upcoming", now.Add(24*time.Hour), 1)

		cards, err := s.ListLiveEvents(ctx)
		require.NoError(t, err)
		var live *model.EventCard
		for i := range cards {
			assert.True(t, cards[i].Event.HasStarted)
			assert.False(t, cards[i].Event.IsComplete)
			if cards[i].Event.ID == "live" {
				live = &cards[i]
			}
		}
		require.NotNil(t, live)
		assert.Len(t, live.Fights, 2)

		stale, err := s.ListStaleEvents(ctx, now.Add(-18*time.Hour))
		require.NoError(t, err)
		var staleIDs []string
		for _, e := range stale {
			staleIDs = append(staleIDs, e.ID)
		}
		assert.Contains(t, staleIDs, "stale")
		assert.NotContains(t, staleIDs, "upcoming")
		assert.NotContains(t, staleIDs, "live")
	})

	t.Run("force complete closes open fights only", func(t *testing.T) {
		ids := seedCard(t, s, "force", now, 3)
		require.NoError(t, s.MarkEventStarted(ctx, "force"))
		require.NoError(t, s.StartFight(ctx, ids[2]))
		require.NoError(t, s.CompleteFight(ctx, ids[2], model.FightResult{CompletedRounds: 3}))
		require.NoError(t, s.StartFight(ctx, ids[1]))
		require.NoError(t, s.StartRound(ctx, ids[1], 2))

		closed, err := s.ForceCompleteEvent(ctx, "force", model.CompletionTimeout12h)
		require.NoError(t, err)
		assert.Equal(t, 2, closed)

		fights, err := s.ListFights(ctx, "force")
		require.NoError(t, err)
		for _, f := range fights {
			assert.True(t, f.IsComplete)
			assert.Nil(t, f.CurrentRound)
			assert.Nil(t, f.Winner)
			assert.Nil(t, f.Method)
		}

		e, err := s.GetEvent(ctx, "force")
		require.NoError(t, err)
		assert.Equal(t, model.CompletionTimeout12h, *e.CompletionMethod)
	})

	t.Run("reset clears progress and selected user data", func(t *testing.T) {
		ids := seedCard(t, s, "reset", now, 2)
		for _, id := range ids {
			for _, kind := range model.UserDataKinds {
				require.NoError(t, s.InsertUserRecord(ctx, &model.UserRecord{Kind: kind, FightID: id, UserID: "u1", Value: "x"}))
			}
		}
		winner := ids[0] + "-a"
		require.NoError(t, s.MarkEventStarted(ctx, "reset"))
		require.NoError(t, s.StartFight(ctx, ids[0]))
		require.NoError(t, s.CompleteFight(ctx, ids[0], model.FightResult{CompletedRounds: 2, Winner: &winner}))
		require.NoError(t, s.CompleteEvent(ctx, "reset", model.CompletionManual))

		summary, err := s.ResetEvent(ctx, "reset", model.ResetOptions{ClearPredictions: true})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.FightsReset)
		assert.Equal(t, map[model.UserDataKind]int{model.UserDataPredictions: 2}, summary.Deleted)

		counts, err := s.CountUserData(ctx, "reset")
		require.NoError(t, err)
		assert.Equal(t, 0, counts[model.UserDataPredictions])
		assert.Equal(t, 2, counts[model.UserDataRatings])
		assert.Equal(t, 2, counts[model.UserDataRoundScores])
		assert.Equal(t, 2, counts[model.UserDataReviews])

		e, err := s.GetEvent(ctx, "reset")
		require.NoError(t, err)
		assert.False(t, e.HasStarted)
		assert.False(t, e.IsComplete)
		assert.Nil(t, e.CompletionMethod)

		fights, err := s.ListFights(ctx, "reset")
		require.NoError(t, err)
		for _, f := range fights {
			assert.False(t, f.HasStarted)
			assert.False(t, f.IsComplete)
			assert.Nil(t, f.CompletedRounds)
			assert.Nil(t, f.Winner)
			assert.Nil(t, f.Method)
			assert.Nil(t, f.WinningRound)
			assert.Nil(t, f.WinningTime)
		}

		_, err = s.ResetEvent(ctx, "reset", model.ResetOptions{ClearUserData: true})
		require.NoError(t, err)
		counts, err = s.CountUserData(ctx, "reset")
		require.NoError(t, err)
		for _, kind := range model.UserDataKinds {
			assert.Equal(t, 0, counts[kind], kind)
		}

		_, err = s.ResetEvent(ctx, "missing", model.ResetOptions{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
