package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/vrcreator/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // build metadata

// app carries state shared by every subcommand once config is loaded.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:          "vrcreator",
		Short:        "Live-code hot reload for agent-built VR scenes",
		Long:         "vrcreator watches a directory of generated scene modules, runs them against a shared entity world, and relays every change to connected VR clients. An agent CLI edits the modules through the bundled MCP tools.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogging(cfg.Log, logOutput(cmd))
			return nil
		},
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newMCPCmd(a),
		newTokenCmd(a),
		newScenesCmd(a),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// logOutput keeps stdout free for command output. Only serve logs there.
func logOutput(cmd *cobra.Command) io.Writer {
	if cmd.Name() == "serve" {
		return cmd.OutOrStdout()
	}
	return cmd.ErrOrStderr()
}

// setupLogging configures the global zerolog logger. cfg has already been
// validated by config.Load.
func setupLogging(cfg config.LogConfig, w io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
}
