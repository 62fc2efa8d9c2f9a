// Command airsafe-tracker ingests AirSafe aircraft targets and publishes them
// to presentation and storage sinks.
package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "airsafe-tracker",
	Short: "Track aircraft from the AirSafe targets API",
	Long:  "Streams live aircraft positions or fetches a historical track from the AirSafe v2 targets API, keeps the latest position per aircraft and publishes it to files, databases, NATS and an HTTP API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func newClient(ctx context.Context, c config.APIConfig) (*airsafe.Client, error) {
	return airsafe.New(ctx, airsafe.Options{
		BaseURL:   c.BaseURL,
		Token:     c.Token,
		ChunkSize: c.ChunkSize,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
