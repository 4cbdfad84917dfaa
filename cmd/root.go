package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dhcgn/threadgraph/config"
	"github.com/dhcgn/threadgraph/store"
)

var rootCmd = &cobra.Command{
	Use:   "threadgraph",
	Short: "Turn raw email-thread files into deduplicated message, person and group tables",
	Long: `threadgraph parses a corpus of email threads, deduplicates messages and
resolves the people and groups behind them. "ingest" builds the online
tables, "reconcile" merges identities with global evidence, "run" does both.`,
	SilenceUsage: true,
}

func init() {
	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// session bundles what every command needs: config, a logger tagged with
// the run id, and the open store.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	runID  string
	store  *store.Store
	close  func()
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.With("run", runID)
	slog.SetDefault(logger)

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		store:  s,
		close: func() {
			if err := s.Close(); err != nil {
				logger.Warn("close store", "err", err)
			}
			_ = cleanup()
		},
	}, nil
}

// track records stage in the run table around fn.
func (s *session) track(ctx context.Context, stage string, fn func() error) error {
	if err := s.store.BeginRun(ctx, s.runID, stage); err != nil {
		return err
	}
	err := fn()
	if ferr := s.store.FinishRun(ctx, s.runID, stage, err); ferr != nil {
		s.logger.Warn("run bookkeeping failed", "stage", stage, "err", ferr)
	}
	return err
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("threadgraph-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
