package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/synthnode/internal/engine"
	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/process"
)

// CreateBootCmd creates the boot command.
func CreateBootCmd() *cobra.Command {
	var optionsFile string
	var mode string
	var name string
	var watch bool
	var killStray bool

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot an engine in the foreground",
		Long: `Boots a synthesis engine with the options from an engine options file and keeps it running ` +
			`until interrupted. With --watch, edits to the options file restart the engine. ` +
			`Exits with the engine's exit code if it dies on its own.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("boot")

			opts, err := LoadEngineOptions(optionsFile)
			if err != nil {
				logger.Error("Failed to load engine options", "error", err, "path", optionsFile)
				os.Exit(1)
			}

			if killStray {
				if _, err := process.KillStray(process.EngineNames, logger); err != nil {
					logger.Warn("Failed to list processes", "error", err)
				}
			}

			bus := events.New()
			panicked := make(chan int, 1)
			defer bus.Subscribe(func(e events.PanicEvent) {
				select {
				case panicked <- e.ExitCode:
				default:
				}
			})()

			eng, err := engine.New(engine.Mode(mode), engine.Config{Name: name, Bus: bus})
			if err != nil {
				logger.Error("Failed to create engine", "error", err, "mode", mode)
				os.Exit(1)
			}
			sup := engine.NewSupervisor(eng, opts, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sup.Boot(ctx); err != nil {
				logger.Error("Engine failed to boot", "error", err)
				os.Exit(1)
			}
			logger.Info("Engine running", "address", eng.Machine().Address(), "pid", sup.PID())

			if watch {
				watcher, err := WatchEngineOptions(optionsFile, sup, logger)
				if err != nil {
					logger.Warn("Failed to watch engine options, hot-reload disabled", "error", err)
				} else {
					defer func() { _ = watcher.Stop() }()
				}
			}

			select {
			case code := <-panicked:
				logger.Error("Engine exited unexpectedly", "exit_code", code)
				if code == 0 {
					code = 1
				}
				os.Exit(code)
			case <-ctx.Done():
			}

			quitCtx, cancel := context.WithTimeout(context.Background(), engine.DefaultQuitTimeout+engine.DefaultKillTimeout)
			defer cancel()
			if err := sup.Quit(quitCtx); err != nil {
				logger.Error("Engine did not quit cleanly", "error", err)
				os.Exit(1)
			}
			logger.Info("Engine stopped")
		},
	}

	cmd.Flags().StringVar(&optionsFile, "options", "engine.toml", "Path to engine options file")
	cmd.Flags().StringVar(&mode, "mode", string(engine.ModeThreaded), "Engine strategy (threaded, async, embedded)")
	cmd.Flags().StringVar(&name, "name", "", "Engine instance name (default: generated)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Restart the engine when the options file changes")
	cmd.Flags().BoolVar(&killStray, "kill-stray", false, "Kill leftover engine processes before booting")

	return cmd
}
