package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airsafe_tracker/internal/api"
	"airsafe_tracker/internal/config"
	"airsafe_tracker/internal/ingest"
)

var (
	streamServe         bool
	streamPositionToken string
	streamDuration      time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Follow the live target stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("serve") {
			cfg.Serve.Enabled = streamServe
		}
		if streamPositionToken != "" {
			cfg.Stream.PositionToken = streamPositionToken
		}
		if cmd.Flags().Changed("duration") {
			cfg.Stream.Duration = streamDuration
		}

		_, err := runStream(ctx, cfg, cmd.OutOrStdout())
		return err
	},
}

// runStream follows the stream until it ends, fails or ctx is cancelled. The
// HTTP API, when enabled, runs alongside and stops with the stream.
func runStream(ctx context.Context, c *config.Config, out io.Writer) (ingest.Stats, error) {
	client, err := newClient(ctx, c.API)
	if err != nil {
		return ingest.Stats{}, err
	}
	query, err := c.Stream.StreamQuery()
	if err != nil {
		return ingest.Stats{}, err
	}

	env, err := openSinks(ctx, c.Sinks, out)
	if err != nil {
		return ingest.Stats{}, err
	}
	defer env.Close()

	pipeline := ingest.NewStream(client, query, env.Fanout, nil).WithDuration(c.Stream.Duration)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return pipeline.Run(runCtx)
	})
	if c.Serve.Enabled {
		srv := api.NewServer(env.Memory, api.Config{
			Addr:           c.Serve.Addr,
			AuthEnabled:    c.Serve.AuthEnabled,
			APIKeys:        c.Serve.APIKeys,
			AllowedOrigins: c.Serve.AllowedOrigins,
		}).WithStats(pipeline)
		if env.Store != nil {
			srv.WithStore(env.Store)
		}
		g.Go(func() error { return srv.Run(runCtx) })
	}

	err = g.Wait()
	st := pipeline.Stats()
	zap.L().Info("stream finished",
		zap.String("session", st.Session),
		zap.Int("chunks", st.Chunks),
		zap.Int("accepted", st.Accepted),
		zap.Int("decode_errors", st.DecodeErrors),
		zap.Int("publishes", st.Publishes),
		zap.String("position_token", st.PositionToken),
	)
	return st, err
}

func init() {
	streamCmd.Flags().BoolVar(&streamServe, "serve", false, "serve the latest snapshot over HTTP (default from config)")
	streamCmd.Flags().StringVar(&streamPositionToken, "position-token", "", "resume from BEGINNING, LATEST or a position token")
	streamCmd.Flags().DurationVar(&streamDuration, "duration", 0, "stop at the first position token after this long (default from config)")
	rootCmd.AddCommand(streamCmd)
}
