package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/sitecrawl/internal/engine"
	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/internal/registry"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the crawl to completion or until interrupted",
	Long: `crawl seeds the frontier from the configured sitemap and seed URLs,
runs the worker pool until the frontier is drained, and persists every
result to the registry. It can be interrupted with SIGINT and resumed by
running crawl again against the same --registry-path.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := buildConfigOrExit()

		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		recorder := metadata.NewRecorder(logger)

		reg, regErr := registry.Open(cfg.RegistryPath(), recorder)
		if regErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open registry: %s\n", regErr)
			os.Exit(1)
		}
		defer reg.Close()

		e, newErr := engine.New(cfg, reg, recorder, recorder)
		if newErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", newErr)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		stats, runErr := e.Run(ctx)
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", runErr)
			os.Exit(1)
		}

		state, stateErr := reg.EngineState()
		if stateErr == nil && state == registry.StateAborted {
			fmt.Fprintf(os.Stderr, "crawl interrupted: %d pages, %d errors, %d assets in %s\n",
				stats.TotalPages, stats.TotalErrors, stats.TotalAssets, stats.Duration)
			os.Exit(130)
		}

		fmt.Printf("crawl finished: %d pages, %d errors, %d assets in %s\n",
			stats.TotalPages, stats.TotalErrors, stats.TotalAssets, stats.Duration)
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}
