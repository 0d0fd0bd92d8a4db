package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsheets/internal/cli/output"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
	Runs  bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [file.sql]",
		Short: "Show recent exports",
		Long: `Show the export history recorded in the state database, newest first.
With a file argument only exports of that file are listed.`,
		Example: `  leapsheets history
  leapsheets history reports/sales.sql --limit 5
  leapsheets history --runs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			store, err := openStore(cc.Cfg.StatePath, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if opts.Runs {
				runs, err := store.ListRuns(opts.Limit)
				if err != nil {
					return err
				}
				return renderRuns(cc.Renderer, runs)
			}

			var recs []*core.ExportRecord
			if len(args) == 1 {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				recs, err = store.ListExportsForSource(path, opts.Limit)
				if err != nil {
					return err
				}
			} else {
				recs, err = store.ListExports(opts.Limit)
				if err != nil {
					return err
				}
			}
			return renderExports(cc.Renderer, recs)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of entries (0 for all)")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "List runs instead of individual exports")

	return cmd
}

func renderExports(r *output.Renderer, recs []*core.ExportRecord) error {
	if r.EffectiveMode() == output.ModeJSON {
		if recs == nil {
			recs = []*core.ExportRecord{}
		}
		return r.JSON(recs)
	}
	if len(recs) == 0 {
		r.Muted("no exports recorded")
		return nil
	}
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		where := rec.Range
		if where == "" {
			where = rec.SheetName
		}
		rows = append(rows, []string{
			rec.CompletedAt.Local().Format(time.DateTime),
			filepath.Base(rec.SourcePath),
			fmt.Sprintf("%d.%d", rec.BlockIndex+1, rec.Destination+1),
			string(rec.Status),
			where,
			rec.Error,
		})
	}
	r.Table([]string{"time", "file", "block", "status", "range", "error"}, rows)
	return nil
}

func renderRuns(r *output.Renderer, runs []*core.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*core.Run{}
		}
		return r.JSON(runs)
	}
	if len(runs) == 0 {
		r.Muted("no runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		took := ""
		if run.CompletedAt != nil {
			took = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			filepath.Base(run.SourcePath),
			string(run.Status),
			took,
			run.Error,
		})
	}
	r.Table([]string{"run", "started", "file", "status", "took", "error"}, rows)
	return nil
}
