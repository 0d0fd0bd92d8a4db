// Package rewrite writes auto-derived directive values back into SQL source.
//
// All edits are byte-range replacements against the text they were computed
// from. Nothing outside the targeted value spans is touched.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapsheets/internal/parser"
	"github.com/leapstack-labs/leapsheets/pkg/core"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// ErrBlockNotFound is returned when the exported block no longer exists in the source.
var ErrBlockNotFound = errors.New("query block not found in source")

// Edit replaces text[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// BlockRef identifies a block as it was when the export started.
type BlockRef struct {
	Index int
	Start int
	End   int
	SQL   string
}

// RefOf captures a block reference.
func RefOf(b *parser.Block) BlockRef {
	return BlockRef{Index: b.Index, Start: b.Start, End: b.End, SQL: b.SQL}
}

// Locate finds ref in doc. Offsets are tried first; when unrelated edits
// shifted them, the block with identical SQL closest to the old index wins.
func Locate(doc *parser.Document, ref BlockRef) (*parser.Block, error) {
	for _, b := range doc.Blocks {
		if b.Start == ref.Start && b.End == ref.End && b.SQL == ref.SQL {
			return b, nil
		}
	}

	var best *parser.Block
	for _, b := range doc.Blocks {
		if b.SQL != ref.SQL {
			continue
		}
		if best == nil || distance(b.Index, ref.Index) < distance(best.Index, ref.Index) {
			best = b
		}
	}
	if best == nil {
		return nil, ErrBlockNotFound
	}
	return best, nil
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Rewrite computes the edits that record res in the directive header of the
// destination that produced it. Values that did not change produce no edit.
func Rewrite(text string, ref BlockRef, destIndex int, res *core.UploadResult) ([]Edit, error) {
	if res == nil {
		return nil, nil
	}
	doc := parser.Parse(text)
	block, err := Locate(doc, ref)
	if err != nil {
		return nil, err
	}
	if destIndex < 0 || destIndex >= len(block.Destinations) {
		return nil, fmt.Errorf("destination %d out of range (block has %d)", destIndex, len(block.Destinations))
	}
	dest := block.Destinations[destIndex]

	var edits []Edit

	cell := res.StartCell
	if _, ok := directive.IsOffset(dest.Config.StartCell); ok {
		cell = dest.Config.StartCell
	}
	namedRange := res.NamedRange
	if namedRange == "" {
		namedRange = dest.Config.NamedRange
	}
	wantStart := directive.FormatStartCell(namedRange, cell)
	haveStart := directive.FormatStartCell(directive.ParseStartCell(dest.Values[string(directive.KeyStartCell)]))
	if wantStart != "" && wantStart != haveStart {
		edits = append(edits, SetParameter(doc, block, destIndex, directive.KeyStartCell, wantStart)...)
		for _, l := range dest.LinesFor(string(directive.KeyStartNamedRange)) {
			edits = append(edits, removeLine(text, l))
		}
	}

	wantSheet := directive.FormatSheetName(res.SheetID, res.SheetName)
	haveSheet := directive.FormatSheetName(directive.ParseSheetName(dest.Values[string(directive.KeySheetName)]))
	if wantSheet != "" && wantSheet != haveSheet {
		if dest.Provenance[string(directive.KeySheetName)] == parser.ProvenanceDefault && !refinesSheet(haveSheet, res) {
			// The upload landed on another sheet than the inherited one. Editing
			// the header line would move every block that inherits it.
			edits = append(edits, insertLine(doc, dest, directive.KeySheetName, wantSheet))
		} else {
			edits = append(edits, SetParameter(doc, block, destIndex, directive.KeySheetName, wantSheet)...)
		}
	}

	return edits, nil
}

// refinesSheet reports whether res resolved the same sheet that the
// inherited value names, adding at most the id or title it lacked.
func refinesSheet(sheet string, res *core.UploadResult) bool {
	id, name := directive.ParseSheetName(sheet)
	if id != nil && res.SheetID != nil {
		return *id == *res.SheetID
	}
	return name != "" && name == res.SheetName
}

// SetParameter sets key for one destination.
//
// An existing line of the destination is edited in place. A value inherited
// from the document header is edited on the header line. Otherwise a new line
// is inserted at the end of the destination's header group.
func SetParameter(doc *parser.Document, block *parser.Block, destIndex int, key directive.Key, value string) []Edit {
	dest := block.Destinations[destIndex]
	if l, ok := dest.Line(string(key)); ok && key != directive.KeyPreFile {
		return []Edit{{Start: l.ValueSpan.Start, End: l.ValueSpan.End, Text: value}}
	}
	if dest.Provenance[string(key)] == parser.ProvenanceDefault && key != directive.KeyPreFile {
		if l, ok := doc.DefaultLine(string(key)); ok {
			return []Edit{{Start: l.ValueSpan.Start, End: l.ValueSpan.End, Text: value}}
		}
	}
	return []Edit{insertLine(doc, dest, key, value)}
}

// insertLine adds `--key: value` at the end of the destination's header group.
func insertLine(doc *parser.Document, dest *parser.Destination, key directive.Key, value string) Edit {
	return Edit{
		Start: dest.HeaderEnd,
		End:   dest.HeaderEnd,
		Text:  "--" + string(key) + ": " + value + newline(doc.Text),
	}
}

func removeLine(text string, l parser.Line) Edit {
	end := l.Span.End
	if end < len(text) && text[end] == '\r' {
		end++
	}
	if end < len(text) && text[end] == '\n' {
		end++
	}
	return Edit{Start: l.Span.Start, End: end}
}

func newline(text string) string {
	if strings.Contains(text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// Apply applies edits back to front so earlier offsets stay valid.
// Insertions at the same offset keep their listed order.
func Apply(text string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}
	type indexed struct {
		Edit
		i int
	}
	sorted := make([]indexed, len(edits))
	for i, e := range edits {
		if e.Start < 0 || e.End < e.Start || e.End > len(text) {
			return "", fmt.Errorf("edit %d out of bounds: [%d,%d) in %d bytes", i, e.Start, e.End, len(text))
		}
		sorted[i] = indexed{e, i}
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start != sorted[b].Start {
			return sorted[a].Start > sorted[b].Start
		}
		return sorted[a].i > sorted[b].i
	})

	for k := 1; k < len(sorted); k++ {
		prev, cur := sorted[k-1], sorted[k]
		if cur.End > prev.Start || (cur.Start == prev.Start && prev.End > prev.Start) {
			return "", fmt.Errorf("overlapping edits at offset %d", prev.Start)
		}
	}

	var b strings.Builder
	out := text
	for _, e := range sorted {
		b.Reset()
		b.Grow(len(out) - (e.End - e.Start) + len(e.Text))
		b.WriteString(out[:e.Start])
		b.WriteString(e.Text)
		b.WriteString(out[e.End:])
		out = b.String()
	}
	return out, nil
}
