package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dialoguelab/internal/app"
	"github.com/MrWong99/dialoguelab/internal/config"
	"github.com/MrWong99/dialoguelab/internal/secrets"
)

func newServeCommand(g *globals) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, g, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file when it changes")
	return cmd
}

func serve(cmd *cobra.Command, g *globals, watch bool) error {
	// ── Load configuration ────────────────────────────────────────────────────
	var (
		application *app.App
		watcher     *config.Watcher
		cfg         *config.Config
		err         error
	)
	if watch {
		watcher, err = config.NewWatcher(g.configPath, func(old, new *config.Config) {
			if application != nil {
				application.Reload(old, new)
			}
		})
		if err == nil {
			cfg = watcher.Current()
		}
	} else {
		cfg, err = config.Load(g.configPath)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", g.configPath)
		}
		return err
	}

	// The flag wins over the file.
	if g.logLevel == "" {
		g.level.Set(cfg.Server.LogLevel.Slog())
	}
	slog.Info("dialoguelab starting",
		"version", version,
		"config", g.configPath,
		"listen_addr", cfg.Server.Addr(),
		"log_level", g.level.Level(),
	)

	// Secrets are resolved on a copy so that config reloads keep comparing
	// file contents.
	resolved := *cfg
	secrets.NewResolver().Resolve(&resolved)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(&resolved, reg)
	if err != nil {
		return err
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cmd.OutOrStdout(), &resolved)

	opts := []app.Option{app.WithLevelVar(g.level), app.WithVersion(version)}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(ctx, &resolved, providers, opts...)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.ShutdownTimeout)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return runErr
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	rows := [][]string{
		{"LLM", providerLabel(cfg.Providers.LLM)},
		{"Translate", providerLabel(cfg.Providers.Translate)},
		{"Speech", providerLabel(cfg.Providers.TTS)},
		{"Pronounce fallback", providerLabel(cfg.Providers.PronounceFallback)},
		{"Take store", orDefault(cfg.Store.Driver, config.StoreMemory)},
		{"Audio store", orDefault(cfg.AudioStore.Driver, config.AudioInline)},
		{"Voice strategy", orDefault(cfg.Synthesis.VoiceStrategy, "heuristic")},
		{"MCP", enabled(cfg.MCP.Enabled)},
		{"Metrics", enabled(cfg.Observe.MetricsEnabled())},
		{"Listen addr", cfg.Server.Addr()},
	}
	fmt.Fprintln(w, renderTable([]string{"dialoguelab " + version, ""}, rows, nil))
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case !e.Configured():
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
