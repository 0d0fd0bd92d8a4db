package export

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/leapstack-labs/leapsheets/internal/parser"
)

type preFileState int

const (
	preFilePending preFileState = iota + 1
	preFileDone
)

// PreFileTracker records which pre-files ran during one export run.
// A pre-file runs at most once per tracker. It is not safe for concurrent use.
type PreFileTracker struct {
	states map[string]preFileState
	stack  []string
	order  []string
}

// NewPreFileTracker creates an empty tracker.
func NewPreFileTracker() *PreFileTracker {
	return &PreFileTracker{states: map[string]preFileState{}}
}

// Done reports whether path already ran.
func (t *PreFileTracker) Done(path string) bool {
	return t.states[path] == preFileDone
}

// Executed returns the pre-files that ran, in completion order.
func (t *PreFileTracker) Executed() []string {
	return slices.Clone(t.order)
}

func (t *PreFileTracker) enter(path string) (bool, error) {
	switch t.states[path] {
	case preFileDone:
		return false, nil
	case preFilePending:
		chain := append(slices.Clone(t.stack), path)
		return false, &CircularDependencyError{Path: path, Chain: chain}
	}
	t.states[path] = preFilePending
	t.stack = append(t.stack, path)
	return true, nil
}

func (t *PreFileTracker) leave(path string, ok bool) {
	t.stack = t.stack[:len(t.stack)-1]
	if !ok {
		delete(t.states, path)
		return
	}
	t.states[path] = preFileDone
	t.order = append(t.order, path)
}

// resolvePreFile makes a pre-file path absolute relative to the file that
// references it.
func resolvePreFile(fromPath, ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	dir := "."
	if fromPath != "" {
		dir = filepath.Dir(fromPath)
	}
	p, err := filepath.Abs(filepath.Join(dir, ref))
	if err != nil {
		return filepath.Join(dir, ref)
	}
	return p
}

// runPreFiles executes the pre-files referenced from fromPath in order.
func (x *Exporter) runPreFiles(ctx context.Context, fromPath string, refs []string, tracker *PreFileTracker) error {
	for _, ref := range refs {
		if err := x.runPreFile(ctx, resolvePreFile(fromPath, ref), tracker); err != nil {
			return err
		}
	}
	return nil
}

// runPreFile executes every statement of one pre-file after its own pre-files.
func (x *Exporter) runPreFile(ctx context.Context, path string, tracker *PreFileTracker) (err error) {
	fresh, err := tracker.enter(path)
	if err != nil || !fresh {
		return err
	}
	defer func() { tracker.leave(path, err == nil) }()

	doc, err := parser.ParseFile(path)
	if err != nil {
		return fmt.Errorf("pre_file %s: %w", path, err)
	}
	x.logger.Info("running pre_file", "path", path, "statements", len(doc.Blocks))

	for _, block := range doc.Blocks {
		if err := x.runPreFiles(ctx, path, blockPreFiles(block), tracker); err != nil {
			return err
		}
		if err := x.warehouse.Exec(ctx, block.SQL); err != nil {
			return fmt.Errorf("pre_file %s statement %d: %w", path, block.Index+1, err)
		}
	}
	return nil
}

// blockPreFiles merges the pre-files of every destination, keeping first
// occurrence order.
func blockPreFiles(block *parser.Block) []string {
	var out []string
	for _, d := range block.Destinations {
		for _, p := range d.PreFiles {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}
