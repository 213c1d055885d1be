package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/trialstream/internal/config"
	"github.com/vango-dev/trialstream/internal/errors"
	"github.com/vango-dev/trialstream/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:   "trialstream",
		Short: "Stream behavioral-experiment events and arrays over WebSocket",
		Long: `trialstream records the control events and numeric arrays an
experiment rig emits during a task.

The server appends every control event and array header to JSON lines
logs and writes each array as a .npy file. The send command replays the
decision-making task timeline against a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				errors.DisableColors()
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	root.AddCommand(
		serveCmd(),
		sendCmd(),
		inspectCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig resolves the config file (explicit path or one found in the
// working directory) and installs the configured logger as slog's default.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	if path == "" {
		path = config.Find(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, errors.New(errors.CodeConfigInvalid).WithKey("log").Wrap(err)
	}
	slog.SetDefault(logger.Logger)
	if cfg.Path() != "" {
		logger.Debug("config loaded", "path", cfg.Path())
	}
	return cfg, logger, nil
}

// info prints an indented status line.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
