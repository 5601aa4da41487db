package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"livecard/internal/database"
	"livecard/internal/model"
)

// seedCard inserts a demo event whose first fight is a five-round title bout.
func seedCard(ctx context.Context, s database.Seeder, name string, date time.Time, fights int) (model.EventCard, error) {
	card := model.EventCard{Event: model.Event{ID: uuid.NewString(), Name: name, Date: date}}
	if err := s.InsertEvent(ctx, &card.Event); err != nil {
		return model.EventCard{}, fmt.Errorf("insert event: %w", err)
	}

	for i := 0; i < fights; i++ {
		f := model.Fight{
			ID:              uuid.NewString(),
			EventID:         card.Event.ID,
			OrderOnCard:     i + 1,
			Fighter1ID:      uuid.NewString(),
			Fighter2ID:      uuid.NewString(),
			IsTitle:         i == 0,
			ScheduledRounds: 3,
		}
		if f.IsTitle {
			f.ScheduledRounds = 5
		}
		if err := s.InsertFight(ctx, &f); err != nil {
			return model.EventCard{}, fmt.Errorf("insert fight %d: %w", i+1, err)
		}
		card.Fights = append(card.Fights, f)
	}
	return card, nil
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	var (
		name   string
		fights int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo event to simulate against",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fights < 0 {
				return fmt.Errorf("--fights must not be negative")
			}
			a, err := newApp(cmd.Context(), flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			card, err := seedCard(cmd.Context(), a.store, name, time.Now().UTC(), fights)
			if err != nil {
				return err
			}
			a.logger.Info("Seeded demo event", "eventId", card.Event.ID, "fights", len(card.Fights))
			return writeJSON(cmd.OutOrStdout(), card)
		},
	}
	cmd.Flags().StringVar(&name, "name", "Demo Fight Night", "Event name")
	cmd.Flags().IntVar(&fights, "fights", 5, "Number of fights on the card")
	return cmd
}
