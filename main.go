package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/synthnode/cmd"
	"github.com/smazurov/synthnode/internal/api"
	"github.com/smazurov/synthnode/internal/config"
	"github.com/smazurov/synthnode/internal/engine"
	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/metrics"
	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"synthnode.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`

	// Engine settings
	EngineOptionsFile     string `help:"Engine options file" default:"engine.toml" toml:"engine.options_file" env:"ENGINE_OPTIONS_FILE"`
	EngineMode            string `help:"Engine strategy (threaded, async, embedded)" default:"threaded" toml:"engine.mode" env:"ENGINE_MODE"`
	EngineName            string `help:"Engine instance name (default: generated)" toml:"engine.name" env:"ENGINE_NAME"`
	EngineDir             string `help:"Working directory for engine subprocesses" toml:"engine.dir" env:"ENGINE_DIR"`
	EngineAutoBoot        bool   `help:"Boot the engine on startup" default:"true" toml:"engine.auto_boot" env:"ENGINE_AUTO_BOOT"`
	EngineWatch           bool   `help:"Restart the engine when its options file changes" default:"true" toml:"engine.watch" env:"ENGINE_WATCH"`
	EngineKillStray       bool   `help:"Kill leftover engine processes on startup" default:"false" toml:"engine.kill_stray" env:"ENGINE_KILL_STRAY"`
	EngineGracefulTimeout string `help:"Wait after SIGINT before killing the engine" default:"5s" toml:"engine.graceful_timeout" env:"ENGINE_GRACEFUL_TIMEOUT"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (auth is off unless both are set)" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingEngine  string `help:"Engine lifecycle logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingScsynth string `help:"Engine output logging level" default:"info" toml:"logging.scsynth" env:"LOGGING_SCSYNTH"`
	LoggingProcess string `help:"Subprocess logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"engine":  opts.LoggingEngine,
				"scsynth": opts.LoggingScsynth,
				"process": opts.LoggingProcess,
				"config":  opts.LoggingConfig,
				"api":     opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		var (
			server  *api.Server
			sup     *engine.Supervisor
			watcher interface{ Stop() error }
		)

		// Engine and server are only built when serving, not for subcommands
		hooks.OnStart(func() {
			eventBus := events.New()
			api.PublishLogs(eventBus)

			engineOpts, err := cmd.LoadEngineOptions(opts.EngineOptionsFile)
			if err != nil {
				logger.Warn("Invalid engine options, using defaults", "path", opts.EngineOptionsFile, "error", err)
				engineOpts = options.Default()
			}

			if opts.EngineKillStray {
				if _, killErr := process.KillStray(process.EngineNames, logging.GetLogger("process")); killErr != nil {
					logger.Warn("Failed to kill stray engines", "error", killErr)
				}
			}

			graceful, err := time.ParseDuration(opts.EngineGracefulTimeout)
			if err != nil {
				graceful = engine.DefaultGracefulTimeout
			}

			eng, err := engine.New(engine.Mode(opts.EngineMode), engine.Config{
				Name:            opts.EngineName,
				Bus:             eventBus,
				Dir:             opts.EngineDir,
				GracefulTimeout: graceful,
			})
			if err != nil {
				logger.Error("Failed to create engine", "mode", opts.EngineMode, "error", err)
				os.Exit(1)
			}
			sup = engine.NewSupervisor(eng, engineOpts, logging.GetLogger("engine"))

			apiOpts := &api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				Supervisor:   sup,
				EventBus:     eventBus,
			}
			if opts.MetricsPrometheusEnabled {
				apiOpts.PrometheusHandler = metrics.Handler()
			}
			server = api.NewServer(apiOpts)

			if opts.EngineWatch {
				w, watchErr := cmd.WatchEngineOptions(opts.EngineOptionsFile, sup, logging.GetLogger("config"))
				if watchErr != nil {
					logger.Warn("Failed to watch engine options, hot-reload disabled", "error", watchErr)
				} else {
					watcher = w
				}
			}

			if opts.EngineAutoBoot {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), cmd.ReloadTimeout)
					defer cancel()
					if bootErr := sup.Boot(ctx); bootErr != nil {
						logger.Error("Engine failed to boot", "error", bootErr)
					}
				}()
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if server != nil {
				if stopErr := server.Stop(ctx); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}
			if watcher != nil {
				_ = watcher.Stop()
			}
			// Quit the engine after the API stops accepting boot requests
			if sup != nil {
				if quitErr := sup.Quit(ctx); quitErr != nil {
					logger.Error("Engine did not quit cleanly", "error", quitErr)
				}
			}
		})
	})

	cli.Root().Use = "synthnode"
	cli.Root().AddCommand(
		cmd.CreateBootCmd(),
		cmd.CreateRenderCmd(),
		cmd.CreateCommandCmd(),
		cmd.CreateKillCmd(),
		cmd.CreateVersionCmd(),
	)

	// Run the CLI
	cli.Run()
}
