package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dhcgn/threadgraph/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Merge users and groups using global evidence and write the final tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		return sess.track(ctx, "reconcile", func() error {
			_, err := runReconcile(ctx, sess)
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest threads, then reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		if err := sess.track(ctx, "ingest", func() error {
			_, err := runIngest(ctx, sess)
			return err
		}); err != nil {
			return err
		}
		return sess.track(ctx, "reconcile", func() error {
			_, err := runReconcile(ctx, sess)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(runCmd)
}

func runReconcile(ctx context.Context, sess *session) (reconcile.Summary, error) {
	sess.logger.Info("starting reconcile", "db", sess.cfg.DBPath, "workers", sess.cfg.Workers, "cleanup", sess.cfg.Cleanup)
	return reconcile.Run(ctx, sess.store, reconcile.Options{
		Workers: sess.cfg.Workers,
		Cleanup: sess.cfg.Cleanup,
	}, sess.logger)
}
