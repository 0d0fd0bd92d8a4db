package export

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/internal/rewrite"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// Source is a SQL document being exported. When Path is set, rewrites are
// written back to the file.
type Source struct {
	Path string
	Text string
}

// LoadSource reads a SQL file.
func LoadSource(path string) (*Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Source{Path: path, Text: string(content)}, nil
}

// Document parses the current text.
func (s *Source) Document() *parser.Document {
	return parser.Parse(s.Text)
}

// reload picks up edits made to the file since it was read.
func (s *Source) reload() error {
	if s.Path == "" {
		return nil
	}
	content, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("failed to reload %s: %w", s.Path, err)
	}
	s.Text = string(content)
	return nil
}

// record writes the upload result of one destination into the directive
// header. It returns the block's reference in the updated text and whether
// anything changed.
func (s *Source) record(ref rewrite.BlockRef, destIndex int, res *core.UploadResult) (rewrite.BlockRef, bool, error) {
	if err := s.reload(); err != nil {
		return ref, false, err
	}
	edits, err := rewrite.Rewrite(s.Text, ref, destIndex, res)
	if err != nil || len(edits) == 0 {
		return ref, false, err
	}
	text, err := rewrite.Apply(s.Text, edits)
	if err != nil {
		return ref, false, err
	}

	if s.Path != "" {
		mode := os.FileMode(0o644)
		if info, err := os.Stat(s.Path); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(s.Path, []byte(text), mode); err != nil {
			return ref, false, fmt.Errorf("failed to write %s: %w", s.Path, err)
		}
	}
	s.Text = text

	block, err := rewrite.Locate(parser.Parse(text), ref)
	if err != nil {
		return ref, true, err
	}
	return rewrite.RefOf(block), true, nil
}
