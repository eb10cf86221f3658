package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/synthnode/internal/engine"
	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/options"
)

// CreateRenderCmd creates the render command.
func CreateRenderCmd() *cobra.Command {
	var optionsFile string
	var job options.NonrealtimeRender
	var dir string

	cmd := &cobra.Command{
		Use:   "render [score] [output]",
		Short: "Render a binary OSC score to an audio file",
		Long: `Runs the engine in non-realtime mode over a binary OSC score and writes the result ` +
			`to the output file. Exits with the engine's exit code.`,
		Args: cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			logger := logging.GetLogger("render")
			job.ScorePath, job.OutputPath = args[0], args[1]

			opts, err := LoadEngineOptions(optionsFile)
			if err != nil {
				logger.Error("Failed to load engine options", "error", err, "path", optionsFile)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nrt := engine.NewNonrealtime(engine.Config{})
			code, err := nrt.Render(ctx, opts, job, dir)
			if err != nil {
				logger.Error("Render failed", "error", err, "exit_code", code)
				if code <= 0 {
					code = 1
				}
				os.Exit(code)
			}
			logger.Info("Render complete", "output", job.OutputPath)
		},
	}

	cmd.Flags().StringVar(&optionsFile, "options", "engine.toml", "Path to engine options file")
	cmd.Flags().StringVar(&job.InputPath, "input", "", "Input sound file (default: none)")
	cmd.Flags().IntVar(&job.SampleRate, "sample-rate", 44100, "Output sample rate")
	cmd.Flags().StringVar(&job.HeaderFormat, "header-format", "aiff", "Output header format (aiff, wav, ...)")
	cmd.Flags().StringVar(&job.SampleFormat, "sample-format", "int24", "Output sample format (int16, int24, float, ...)")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory for the engine")

	return cmd
}
