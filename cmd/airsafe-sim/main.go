// Command airsafe-sim serves a synthetic AirSafe targets API for local runs
// and demos.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"airsafe_tracker/internal/config"
	"airsafe_tracker/internal/simulate"
)

var (
	flagAddr     string
	flagAircraft int
	flagSeed     int64
)

var rootCmd = &cobra.Command{
	Use:   "airsafe-sim",
	Short: "Serve a synthetic AirSafe targets API",
	Long:  "Serves /v2/targets/stream and /v2/targets/history with a deterministic fleet of generated aircraft, using the same bearer token scheme as the real API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		defer func() { _ = zap.L().Sync() }()

		sc := cfg.Simulator
		if cmd.Flags().Changed("addr") {
			sc.Addr = flagAddr
		}
		if cmd.Flags().Changed("aircraft") {
			sc.Aircraft = flagAircraft
		}
		if cmd.Flags().Changed("seed") {
			sc.Seed = flagSeed
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, sc.Addr, newHandler(sc))
	},
	SilenceUsage: true,
}

func newHandler(sc config.SimulatorConfig) http.Handler {
	return simulate.NewServer(simulate.ServerOptions{
		Token:     sc.Token,
		Generator: simulate.NewGenerator(sc.Seed, sc.Aircraft),
		Updates:   sc.Updates,
		Interval:  time.Duration(sc.IntervalMS) * time.Millisecond,
		MaxChunk:  sc.MaxChunk,
	})
}

func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("simulator listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "simulator")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Open streams never finish on their own.
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(err, "simulator shutdown")
	}
	return nil
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8089", "listen address (default from config)")
	rootCmd.Flags().IntVar(&flagAircraft, "aircraft", 25, "fleet size (default from config)")
	rootCmd.Flags().Int64Var(&flagSeed, "seed", 1, "fleet seed (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
