package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapsheets/internal/cli/output"
	"github.com/leapstack-labs/leapsheets/internal/export"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Blocks    []int
	Deps      bool
	NoRewrite bool
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <file.sql>...",
		Short: "Run query blocks and upload their results",
		Long: `Execute every query block of the given SQL files and upload each result
to the spreadsheet destinations declared in the block's --key: value header.

Blocks run one after another. After a successful upload the resolved sheet id
and the generated named range are written back into the header, so the next
export lands in exactly the same place.

CREATE statements are executed without uploading. Blocks missing a
spreadsheet_id, sheet_name or start_cell are skipped.`,
		Example: `  # Export every block of a file
  leapsheets export reports/sales.sql

  # Export only the second block, running its pre_file scripts first
  leapsheets export reports/sales.sql --block 2 --deps

  # Export without touching the SQL file
  leapsheets export reports/*.sql --no-rewrite`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args)
		},
	}

	cmd.Flags().IntSliceVarP(&opts.Blocks, "block", "b", nil, "Export only these blocks (1-based, repeatable)")
	cmd.Flags().BoolVar(&opts.Deps, "deps", false, "Execute pre_file scripts before each block")
	cmd.Flags().BoolVar(&opts.NoRewrite, "no-rewrite", false, "Do not write resolved values back into the SQL file")

	return cmd
}

// ExportOutput is the JSON output of the export command.
type ExportOutput struct {
	Files []FileOutput `json:"files"`
}

// FileOutput summarizes one exported file.
type FileOutput struct {
	Path     string        `json:"path"`
	RunID    string        `json:"run_id,omitempty"`
	Blocks   []BlockOutput `json:"blocks"`
	PreFiles []string      `json:"pre_files,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// BlockOutput is the outcome of one block.
type BlockOutput struct {
	Block   int    `json:"block"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func runExport(cmd *cobra.Command, opts *ExportOptions, files []string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := cc.NewRuntime(ctx, opts.NoRewrite)
	defer rt.Close()

	blocks := make([]int, 0, len(opts.Blocks))
	for _, b := range opts.Blocks {
		if b < 1 {
			return fmt.Errorf("invalid block number %d (blocks are numbered from 1)", b)
		}
		blocks = append(blocks, b-1)
	}

	jsonMode := r.EffectiveMode() == output.ModeJSON
	started := time.Now()
	out := ExportOutput{}
	failed := 0
	var fatal error

	for _, file := range files {
		path, err := filepath.Abs(file)
		if err != nil {
			path = file
		}
		if !jsonMode {
			r.Header(2, file)
		}

		res, err := rt.Exporter.ExportFile(ctx, path, export.FileOptions{
			ExecuteDependencies: opts.Deps,
			Blocks:              blocks,
			Progress: func(_, _ int, br export.BlockResult) {
				if !jsonMode {
					renderBlockResult(r, br)
				}
			},
		})

		fo := FileOutput{Path: path}
		if res != nil {
			fo.RunID = res.RunID
			fo.PreFiles = res.PreFiles
			for _, br := range res.Blocks {
				bo := BlockOutput{Block: br.Block + 1, Outcome: string(br.Outcome)}
				if br.Err != nil {
					bo.Error = br.Err.Error()
				}
				if br.Failed() {
					failed++
				}
				fo.Blocks = append(fo.Blocks, bo)
			}
		}
		if err != nil {
			fo.Error = err.Error()
			fatal = errors.Join(fatal, fmt.Errorf("%s: %w", file, err))
		}
		out.Files = append(out.Files, fo)

		if ctx.Err() != nil {
			break
		}
	}

	if jsonMode {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		r.Println("")
		r.Muted(fmt.Sprintf("Completed in %s", time.Since(started).Round(time.Millisecond)))
	}

	if fatal != nil {
		return fatal
	}
	if failed > 0 {
		return fmt.Errorf("%d block(s) failed", failed)
	}
	return nil
}

func renderBlockResult(r *output.Renderer, br export.BlockResult) {
	name := fmt.Sprintf("block %d", br.Block+1)
	status := outcomeStatus(br)
	detail := outcomeLabel(br.Outcome)
	if br.Err != nil {
		detail = strings.TrimSpace(detail + " " + br.Err.Error())
	}
	r.StatusLine(name, status, detail)
}

func outcomeStatus(br export.BlockResult) string {
	switch {
	case br.Outcome == export.SkippedMissingConfig:
		return "skipped"
	case br.Outcome == export.UserCancelled:
		return "warning"
	case br.Err != nil && br.Outcome == "":
		return "failed"
	case br.Err != nil:
		return "warning"
	default:
		return "success"
	}
}

// outcomeLabel turns an outcome tag into a readable label.
func outcomeLabel(o export.Outcome) string {
	if o == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(o), "_", " "))
}

// exportOnce exports one file, rendering each block as it finishes.
func exportOnce(ctx context.Context, rt *Runtime, path string, deps bool, r *output.Renderer) error {
	res, err := rt.Exporter.ExportFile(ctx, path, export.FileOptions{
		ExecuteDependencies: deps,
		Progress: func(_, _ int, br export.BlockResult) {
			renderBlockResult(r, br)
		},
	})
	if err != nil {
		return err
	}
	return res.Err()
}
