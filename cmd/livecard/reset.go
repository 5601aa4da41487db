package main

import (
	"github.com/spf13/cobra"

	"livecard/internal/model"
	"livecard/internal/outcome"
	"livecard/internal/simulation"
)

func newResetCmd(flags *rootFlags) *cobra.Command {
	var opts model.ResetOptions

	cmd := &cobra.Command{
		Use:   "reset <eventID>",
		Short: "Clear an event's progress and optionally its user data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			controller := simulation.NewController(a.logger, a.store, outcome.NewSeededGenerator(a.cfg.Simulation.Seed), a.controllerOptions()...)
			summary, err := controller.Reset(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.ClearUserData, "clear-user-data", false, "Delete all predictions, ratings, round scores and reviews")
	f.BoolVar(&opts.ClearPredictions, "clear-predictions", false, "Delete predictions")
	f.BoolVar(&opts.ClearRatings, "clear-ratings", false, "Delete ratings")
	f.BoolVar(&opts.ClearRoundScores, "clear-round-scores", false, "Delete round scores")
	f.BoolVar(&opts.ClearReviews, "clear-reviews", false, "Delete reviews")
	return cmd
}
