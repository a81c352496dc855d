// Package cmd assembles the engine's command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/cmd/analyze"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/cmd/benchmark"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/cmd/realtime"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gamecalls-engine",
		Short: "Real-time audio pipeline engine",
		Long: "gamecalls-engine processes live and recorded audio through ring-buffered\n" +
			"streams with format conversion, quality assessment and adaptive buffering.",
	}

	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", settings.Debug, "enable debug logging")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
	}

	rootCmd.AddCommand(
		analyze.Command(settings),
		realtime.Command(settings),
		benchmark.Command(settings),
	)

	return rootCmd
}
