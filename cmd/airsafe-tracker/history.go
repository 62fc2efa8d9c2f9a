package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"airsafe_tracker/internal/animation"
	"airsafe_tracker/internal/config"
	"airsafe_tracker/internal/ingest"
	"airsafe_tracker/internal/target"
	"airsafe_tracker/internal/track"
)

var (
	historyICAO    string
	historyStart   string
	historyEnd     string
	historyAnimate bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Fetch the historical track of an aircraft",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if historyICAO != "" {
			cfg.History.ICAOAddress = historyICAO
		}
		if historyStart != "" {
			cfg.History.Start = historyStart
		}
		if historyEnd != "" {
			cfg.History.End = historyEnd
		}

		_, err := runHistory(ctx, cfg, historyAnimate, cmd.OutOrStdout())
		return err
	},
}

// runHistory fetches one window, publishes it and optionally replays it.
func runHistory(ctx context.Context, c *config.Config, animate bool, out io.Writer) ([]target.Target, error) {
	client, err := newClient(ctx, c.API)
	if err != nil {
		return nil, err
	}
	query, err := c.History.HistoryQuery(time.Now().UTC())
	if err != nil {
		return nil, err
	}

	env, err := openSinks(ctx, c.Sinks, out)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	targets, err := ingest.NewHistory(client, query, env.Fanout, nil).Run(ctx)
	if err != nil {
		return nil, err
	}

	if animate {
		player := animation.NewPlayer(targets, c.Animation.Interval())
		err := player.Run(ctx, func(f animation.Frame) {
			_, _ = fmt.Fprintln(out, f)
		})
		if err != nil && ctx.Err() == nil {
			return targets, err
		}
	}

	summary := track.Summarize(targets)
	zap.L().Info("history fetched",
		zap.String("icao_address", summary.ICAOAddress),
		zap.Int("reports", summary.Reports),
		zap.Float64("distance_km", summary.DistanceKM),
	)
	_, _ = fmt.Fprintln(out, summary)
	return targets, nil
}

func init() {
	historyCmd.Flags().StringVar(&historyICAO, "icao", "", "ICAO address of the aircraft (default from config)")
	historyCmd.Flags().StringVar(&historyStart, "start", "", "window start, RFC 3339 (default one hour before end)")
	historyCmd.Flags().StringVar(&historyEnd, "end", "", "window end, RFC 3339 (default now)")
	historyCmd.Flags().BoolVar(&historyAnimate, "animate", false, "replay the track one report at a time")
	rootCmd.AddCommand(historyCmd)
}
