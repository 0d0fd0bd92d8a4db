package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsheets/internal/cli/output"
	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.sql>",
		Short: "Show the blocks and destinations of a SQL file",
		Long: `Parse a SQL file and show every query block with the resolved
configuration of each destination, including where each value came from:
the document header ("default") or the block's own header ("query").`,
		Example: `  leapsheets inspect reports/sales.sql
  leapsheets inspect reports/sales.sql -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			doc, err := parser.ParseFile(args[0])
			if err != nil {
				return err
			}
			return renderInspect(cc.Renderer, args[0], doc)
		},
	}
	return cmd
}

// InspectOutput is the JSON output of the inspect command.
type InspectOutput struct {
	Path     string            `json:"path"`
	Defaults map[string]string `json:"defaults,omitempty"`
	Blocks   []InspectBlock    `json:"blocks"`
}

// InspectBlock describes one block.
type InspectBlock struct {
	Block        int                  `json:"block"`
	Kind         string               `json:"kind"`
	SQL          string               `json:"sql"`
	Destinations []InspectDestination `json:"destinations"`
}

// InspectDestination describes one destination of a block.
type InspectDestination struct {
	Destination int               `json:"destination"`
	Status      string            `json:"status"`
	Problem     string            `json:"problem,omitempty"`
	Values      map[string]string `json:"values"`
	Provenance  map[string]string `json:"provenance"`
	PreFiles    []string          `json:"pre_files,omitempty"`
}

func buildInspectOutput(path string, doc *parser.Document) InspectOutput {
	out := InspectOutput{Path: path, Defaults: doc.Defaults}
	for _, b := range doc.Blocks {
		ib := InspectBlock{Block: b.Index + 1, Kind: "query", SQL: b.SQL}
		if b.IsCreate() {
			ib.Kind = "create"
		}
		for _, d := range b.Destinations {
			id := InspectDestination{
				Destination: d.Index + 1,
				Status:      destinationStatus(d.Config),
				Values:      d.Values,
				Provenance:  map[string]string{},
				PreFiles:    d.PreFiles,
			}
			if err := d.Config.Validate(); err != nil && !d.Config.Skip {
				id.Problem = err.Error()
			}
			for k, p := range d.Provenance {
				id.Provenance[k] = string(p)
			}
			ib.Destinations = append(ib.Destinations, id)
		}
		out.Blocks = append(out.Blocks, ib)
	}
	return out
}

func destinationStatus(c directive.Config) string {
	switch {
	case c.Skip:
		return "skipped"
	case c.Validate() != nil:
		return "incomplete"
	default:
		return "ready"
	}
}

func renderInspect(r *output.Renderer, path string, doc *parser.Document) error {
	out := buildInspectOutput(path, doc)
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, path)
	if len(out.Blocks) == 0 {
		r.Muted("no query blocks")
		return nil
	}

	var rows [][]string
	for _, b := range out.Blocks {
		for _, d := range b.Destinations {
			keys := make([]string, 0, len(d.Values))
			for k := range d.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				rows = append(rows, []string{
					fmt.Sprint(b.Block), fmt.Sprint(d.Destination), k, d.Values[k], d.Provenance[k],
				})
			}
			for _, p := range d.PreFiles {
				rows = append(rows, []string{
					fmt.Sprint(b.Block), fmt.Sprint(d.Destination), string(directive.KeyPreFile), p, "",
				})
			}
		}
	}
	r.Table([]string{"block", "dest", "key", "value", "source"}, rows)
	r.Println("")

	for _, b := range out.Blocks {
		for _, d := range b.Destinations {
			name := fmt.Sprintf("block %d destination %d (%s)", b.Block, d.Destination, firstLine(b.SQL))
			switch {
			case b.Kind == "create":
				r.StatusLine(name, "success", "executed, not uploaded")
			case d.Status == "ready":
				r.StatusLine(name, "success", "")
			case d.Status == "skipped":
				r.StatusLine(name, "skipped", "skip is set")
			default:
				r.StatusLine(name, "warning", d.Problem)
			}
		}
	}
	return nil
}

func firstLine(sql string) string {
	line, _, _ := strings.Cut(sql, "\n")
	if len(line) > 48 {
		line = line[:45] + "..."
	}
	return line
}
