package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livecard/internal/outcome"
	"livecard/internal/simulation"
)

type simulateFlags struct {
	eventStartDelay    time.Duration
	fightStartDelay    time.Duration
	roundDuration      time.Duration
	betweenRoundsDelay time.Duration
	postFightDelay     time.Duration
	speed              float64
	autoGenerate       bool
	seed               int64
}

// overrides returns only the time-scale flags set on the command line.
func (f *simulateFlags) overrides(cmd *cobra.Command) *simulation.TimeScaleOverrides {
	o := &simulation.TimeScaleOverrides{}
	changed := cmd.Flags().Changed
	if changed("event-start-delay") {
		o.EventStartDelay = &f.eventStartDelay
	}
	if changed("fight-start-delay") {
		o.FightStartDelay = &f.fightStartDelay
	}
	if changed("round-duration") {
		o.RoundDuration = &f.roundDuration
	}
	if changed("between-rounds-delay") {
		o.BetweenRoundsDelay = &f.betweenRoundsDelay
	}
	if changed("post-fight-delay") {
		o.PostFightDelay = &f.postFightDelay
	}
	if changed("speed") {
		o.SpeedMultiplier = &f.speed
	}
	return o
}

func newSimulateCmd(flags *rootFlags) *cobra.Command {
	sf := &simulateFlags{}

	cmd := &cobra.Command{
		Use:   "simulate <eventID>",
		Short: "Play an event forward in real time, printing status after each step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			autoGenerate := a.cfg.Simulation.AutoGenerateOutcomes
			if cmd.Flags().Changed("auto-generate") {
				autoGenerate = sf.autoGenerate
			}
			seed := a.cfg.Simulation.Seed
			if cmd.Flags().Changed("seed") {
				seed = sf.seed
			}

			var mu sync.Mutex
			emit := func(s simulation.Status) {
				mu.Lock()
				defer mu.Unlock()
				if err := writeJSON(cmd.OutOrStdout(), s); err != nil {
					a.logger.Warn("Failed to write status", "error", err)
				}
			}

			done := make(chan simulation.Status, 1)
			opts := append(a.controllerOptions(), simulation.WithObserver(func(s simulation.Status) {
				emit(s)
				if !s.IsRunning || s.LastError != "" {
					select {
					case done <- s:
					default:
					}
				}
			}))
			controller := simulation.NewController(a.logger, a.store, outcome.NewSeededGenerator(seed), opts...)

			status, err := controller.Start(ctx, args[0], sf.overrides(cmd), autoGenerate)
			if err != nil {
				return err
			}
			emit(status)

			select {
			case final := <-done:
				if final.LastError != "" {
					_ = controller.Stop(context.Background())
					return fmt.Errorf("simulation halted in %s: %s", final.CurrentState, final.LastError)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("Interrupted, stopping simulation")
				if err := controller.Stop(context.Background()); err != nil {
					a.logger.Debug("Simulation already ended", "error", err)
				}
				return nil
			}
		},
	}

	f := cmd.Flags()
	f.DurationVar(&sf.eventStartDelay, "event-start-delay", 5*time.Second, "Delay before the event starts")
	f.DurationVar(&sf.fightStartDelay, "fight-start-delay", 10*time.Second, "Delay before each fight")
	f.DurationVar(&sf.roundDuration, "round-duration", 30*time.Second, "Length of a round")
	f.DurationVar(&sf.betweenRoundsDelay, "between-rounds-delay", 5*time.Second, "Break between rounds")
	f.DurationVar(&sf.postFightDelay, "post-fight-delay", 8*time.Second, "Pause after a fight ends")
	f.Float64Var(&sf.speed, "speed", 1, "Speed multiplier applied to every delay")
	f.BoolVar(&sf.autoGenerate, "auto-generate", true, "Generate winners and methods for each fight")
	f.Int64Var(&sf.seed, "seed", 0, "Random seed for outcomes (0 uses the clock)")
	return cmd
}
