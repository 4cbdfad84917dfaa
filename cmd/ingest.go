package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhcgn/threadgraph/config"
	"github.com/dhcgn/threadgraph/imap"
	"github.com/dhcgn/threadgraph/ingest"
	"github.com/dhcgn/threadgraph/maildir"
	"github.com/dhcgn/threadgraph/mbox"
	"github.com/dhcgn/threadgraph/progress"
	"github.com/dhcgn/threadgraph/runner"
	"github.com/dhcgn/threadgraph/stats"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse threads and build the email, user and group tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		return sess.track(ctx, "ingest", func() error {
			_, err := runIngest(ctx, sess)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// counter is implemented by sources that can size the progress bar.
type counter interface {
	Count(ctx context.Context) (int, error)
}

func runIngest(ctx context.Context, sess *session) (ingest.Summary, error) {
	cfg := sess.cfg
	logger := sess.logger

	source, err := cfg.InputSource()
	if err != nil {
		return ingest.Summary{}, err
	}
	logger.Info("starting ingest", "source", source, "db", cfg.DBPath, "workers", cfg.Workers, "domain", cfg.OrgDomain)

	r, err := runner.New(cfg, logger)
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)

	consumer, err := ingest.NewConsumer(ingest.Options{Domain: cfg.OrgDomain, BatchSize: cfg.BatchSize}, r, sess.store, logger)
	if err != nil {
		r.Fail(fmt.Errorf("ingest.NewConsumer: %w", err))
		return ingest.Summary{}, r.Start()
	}

	src, err := addSource(r, source, cfg)
	if err != nil {
		r.Fail(err)
		return ingest.Summary{}, r.Start()
	}

	total := 0
	if c, ok := src.(counter); ok && cfg.LogLevel == "info" {
		if total, err = c.Count(ctx); err != nil {
			logger.Warn("count threads", "err", err)
		}
	}
	progress.NewProgressReporter(r, progress.New(total, cfg.LogLevel), logger)

	if err := r.Start(); err != nil {
		return ingest.Summary{}, err
	}
	return consumer.Summary(), nil
}

func addSource(r *runner.Runner, source config.Source, cfg config.Config) (any, error) {
	logger := r.Logger()
	switch source {
	case config.SourceDir:
		p, err := maildir.NewProducer(maildir.Options{Root: cfg.InputDir, Pattern: cfg.FilePattern, Exclude: cfg.Exclude}, r, logger)
		if err != nil {
			return nil, fmt.Errorf("maildir.NewProducer: %w", err)
		}
		return p, nil
	case config.SourceMbox:
		p, err := mbox.NewProducer(mbox.Options{Path: cfg.MboxPath}, r, logger)
		if err != nil {
			return nil, fmt.Errorf("mbox.NewProducer: %w", err)
		}
		return p, nil
	case config.SourceIMAP:
		s, err := imap.NewSource(imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Folder:             cfg.IMAPFolder,
		}, r, logger)
		if err != nil {
			return nil, fmt.Errorf("imap.NewSource: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}
