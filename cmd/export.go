package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhcgn/threadgraph/export"
	"github.com/dhcgn/threadgraph/store"
)

var exportAll bool

var exportCmd = &cobra.Command{
	Use:   "export [table...]",
	Short: "Write tables to Parquet files",
	Long: `Write tables from the SQLite store to <export-dir>/<table>.parquet.
Without arguments the final reconciled tables are exported; tables that do
not exist yet are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		tables := store.FinalTables
		if exportAll {
			tables = store.AllTables()
		}
		if len(args) > 0 {
			tables = tables[:0:0]
			for _, name := range args {
				t, err := store.ParseTable(name)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			}
		}

		var present []store.Table
		for _, t := range tables {
			ok, err := sess.store.Exists(ctx, t)
			if err != nil {
				return err
			}
			if !ok {
				sess.logger.Warn("table missing, skipped", "table", t)
				continue
			}
			present = append(present, t)
		}

		return sess.track(ctx, "export", func() error {
			e, err := export.Open(sess.store.Path(), sess.logger)
			if err != nil {
				return err
			}
			defer e.Close()

			results, err := e.Export(ctx, sess.cfg.ExportDir, present...)
			for _, res := range results {
				sess.logger.Info("exported", "table", res.Table, "path", res.Path, "rows", res.Rows, "size", humanize.Bytes(uint64(res.Bytes)))
			}
			return err
		})
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every table, including intermediate ones")
	rootCmd.AddCommand(exportCmd)
}
