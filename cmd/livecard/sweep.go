package main

import (
	"github.com/spf13/cobra"

	"livecard/internal/completion"
)

func newSweepCmd(flags *rootFlags) *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one completion sweep and print the events it finalized",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			detector := completion.NewDetector(a.logger, a.store, completion.WithMetrics(a.metrics))
			if eventID != "" {
				res, err := detector.CheckSpecificEvent(cmd.Context(), eventID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			}

			results, err := detector.CheckEventCompletion(cmd.Context())
			if err != nil {
				return err
			}
			if results == nil {
				results = []completion.Result{}
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "Only report the result for this event")
	return cmd
}

func newCompleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <eventID>",
		Short: "Mark an event complete and close its remaining fights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			detector := completion.NewDetector(a.logger, a.store, completion.WithMetrics(a.metrics))
			res, err := detector.ManuallyCompleteEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}
