// Command dialoguelab serves the dialogue practice API and offers offline
// tools for parsing scripts and aligning speech timings.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dialoguelab/internal/config"
	"github.com/MrWong99/dialoguelab/internal/secrets"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "dialoguelab: %v\n", err)
		}
		return 1
	}
	return 0
}

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	logLevel   string

	level *slog.LevelVar
}

func newRootCommand() *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "dialoguelab",
		Short:         "Dialogue practice server and script tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.logLevel != "" {
				lvl := config.LogLevel(g.logLevel)
				if !lvl.IsValid() {
					return fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", g.logLevel)
				}
				g.level.Set(lvl.Slog())
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), g.level))
			return secrets.LoadEnvFile(g.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "config.yaml", "configuration file (.yaml or .toml)")
	flags.StringVar(&g.envFile, "env-file", "", "dotenv file with API keys (default ./.env when present)")
	flags.StringVar(&g.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(g),
		newParseCommand(),
		newAlignCommand(),
		newVoicesCommand(),
		newSecretCommand(),
		newVersionCommand(),
	)
	return root
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dialoguelab %s\n", version)
			return err
		},
	}
}
