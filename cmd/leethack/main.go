package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/p-arndt/leethack/internal/api"
	"github.com/p-arndt/leethack/internal/challenge"
	"github.com/p-arndt/leethack/internal/config"
	"github.com/p-arndt/leethack/internal/docker"
	"github.com/p-arndt/leethack/internal/reaper"
	"github.com/p-arndt/leethack/internal/session"
	"github.com/p-arndt/leethack/internal/store"
)

// Build info (set by build system)
var (
	commit = "unknown"
	date   = "unknown"
)

type options struct {
	configFile string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "leethack",
		Short:        "LeetHack terminal backend",
		Long:         "leethack provisions one sandbox container per challenge session and runs learners' shell commands inside it.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", api.Version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to leethack.yaml")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newChallengesCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newChallengesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "challenges",
		Short: "Print the challenge catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			catalog, err := challenge.NewCatalog(cfg.DefaultImage, cfg.Challenges)
			if err != nil {
				return fmt.Errorf("load challenges: %w", err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(catalog.List())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leethack %s\ncommit: %s\nbuilt: %s\n", api.Version, commit, date)
		},
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func runServe(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger, err := newLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	catalog, err := challenge.NewCatalog(cfg.DefaultImage, cfg.Challenges)
	if err != nil {
		return fmt.Errorf("load challenges: %w", err)
	}

	history, err := store.New(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	dc, err := docker.New()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer dc.Close()

	if err := dc.Ping(ctx); err != nil {
		logger.Error("docker ping failed, is Docker running?", "error", err)
		return fmt.Errorf("docker ping: %w", err)
	}
	logger.Info("docker connection OK")

	mgr := session.NewManager(cfg, catalog, session.NewRegistry(), dc, history, logger)

	if n, err := mgr.PurgeOrphans(ctx); err != nil {
		logger.Warn("purge orphaned containers", "error", err)
	} else if n > 0 {
		logger.Info("removed orphaned containers", "count", n)
	}

	rpr := reaper.New(mgr,
		time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Session.MaxIdleSeconds)*time.Second,
		logger)
	go rpr.Run(ctx)

	srv := api.NewServer(cfg, mgr, logger)
	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // execute waits for provisioning plus the command
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "challenges", len(catalog.List()))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			mgr.Shutdown(context.Background())
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	mgr.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}
