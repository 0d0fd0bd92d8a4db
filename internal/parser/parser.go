// Package parser turns a SQL document into query blocks and the export
// destinations declared in their `--key: value` comment headers.
package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// Provenance tells where a destination value came from.
type Provenance string

// Provenance values.
const (
	ProvenanceDefault Provenance = "default"
	ProvenanceQuery   Provenance = "query"
)

// Span is a half-open byte range into the document text.
type Span struct {
	Start int
	End   int
}

// Line is one recognized directive line.
type Line struct {
	Key   string
	Value string
	// Span covers the line without its newline.
	Span Span
	// ValueSpan covers the trimmed value.
	ValueSpan Span
}

// Destination is one export target of a block.
type Destination struct {
	Index      int
	Values     map[string]string
	PreFiles   []string
	Provenance map[string]Provenance
	// Lines are the directive lines written under this destination.
	Lines []Line
	// HeaderStart and HeaderEnd bound this destination's header group.
	// HeaderEnd is where a new directive line for it is inserted.
	HeaderStart int
	HeaderEnd   int
	Config      directive.Config
}

// Line returns the last own directive line for key.
func (d *Destination) Line(key string) (Line, bool) {
	for i := len(d.Lines) - 1; i >= 0; i-- {
		if d.Lines[i].Key == key {
			return d.Lines[i], true
		}
	}
	return Line{}, false
}

// LinesFor returns every own directive line for key, in order.
func (d *Destination) LinesFor(key string) []Line {
	var out []Line
	for _, l := range d.Lines {
		if l.Key == key {
			out = append(out, l)
		}
	}
	return out
}

// Block is one statement of the document.
type Block struct {
	Index int
	// Start is the first non-whitespace byte, End is one past the terminator.
	Start     int
	End       int
	HeaderEnd int
	SQL       string
	// Destinations always holds at least one entry.
	Destinations []*Destination
}

// IsCreate reports whether the statement is a CREATE statement.
func (b *Block) IsCreate() bool {
	s := stripLeadingComments(b.SQL)
	if len(s) < 6 || !strings.EqualFold(s[:6], "create") {
		return false
	}
	return len(s) == 6 || !isWordByte(s[6])
}

// Document is the parsed form of a SQL file.
type Document struct {
	Text            string
	Defaults        map[string]string
	DefaultPreFiles []string
	DefaultLines    []Line
	Blocks          []*Block
}

// DefaultLine returns the last document-level line for key.
func (d *Document) DefaultLine(key string) (Line, bool) {
	for i := len(d.DefaultLines) - 1; i >= 0; i-- {
		if d.DefaultLines[i].Key == key {
			return d.DefaultLines[i], true
		}
	}
	return Line{}, false
}

// BlockAt returns the block whose span contains offset.
func (d *Document) BlockAt(offset int) (*Block, bool) {
	for _, b := range d.Blocks {
		if offset >= b.Start && offset <= b.End {
			return b, true
		}
	}
	return nil, false
}

var (
	directivePattern = regexp.MustCompile(`^\s*--\s*(\w+)\s*:\s*(.*?)\s*$`)
	separatorPattern = regexp.MustCompile(`^\s*--\s*-?\d+\s*$`)
)

// ParseFile reads and parses a SQL file.
func ParseFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(string(content)), nil
}

// Parse splits text into blocks and resolves each block's destinations.
//
// Header lines that are not well-formed directives, or name an unknown key,
// are treated as plain comments.
func Parse(text string) *Document {
	doc := &Document{Text: text}
	doc.parseDefaults()

	for _, seg := range splitStatements(text) {
		block, ok := doc.parseBlock(seg)
		if !ok {
			continue
		}
		block.Index = len(doc.Blocks)
		doc.Blocks = append(doc.Blocks, block)
	}
	return doc
}

// parseDefaults scans the document header from offset 0. The scan stops at
// the first SQL line or the first destination separator.
func (d *Document) parseDefaults() {
	values := map[string]string{}
	for off := 0; off < len(d.Text); {
		ln := lineAt(d.Text, off, len(d.Text))
		raw := d.Text[ln.start:ln.end]
		if !isHeaderLine(raw) || separatorPattern.MatchString(raw) {
			break
		}
		if l, ok := matchDirective(d.Text, ln); ok {
			d.DefaultLines = append(d.DefaultLines, l)
			if l.Key == string(directive.KeyPreFile) {
				d.DefaultPreFiles = appendUnique(d.DefaultPreFiles, l.Value)
			} else {
				values[l.Key] = l.Value
			}
		}
		off = ln.next
	}

	d.Defaults = map[string]string{}
	for k, v := range values {
		if directive.IsInheritable(directive.Key(k)) {
			d.Defaults[k] = v
		}
	}
}

func (d *Document) parseBlock(seg segment) (*Block, bool) {
	text := d.Text
	start := seg.start
	for start < seg.end && isSpace(text[start]) {
		start++
	}
	if start >= seg.end {
		return nil, false
	}

	block := &Block{Start: start, End: seg.end}
	dest := d.newDestination(0, start)
	block.Destinations = append(block.Destinations, dest)

	off := start
	for off < seg.end {
		ln := lineAt(text, off, seg.end)
		raw := text[ln.start:ln.end]
		if !isHeaderLine(raw) {
			break
		}
		switch {
		case separatorPattern.MatchString(raw):
			if len(dest.Lines) > 0 {
				dest.HeaderEnd = ln.start
				dest = d.newDestination(len(block.Destinations), ln.start)
				block.Destinations = append(block.Destinations, dest)
			}
		default:
			if l, ok := matchDirective(text, ln); ok {
				dest.apply(l)
			}
		}
		off = ln.next
	}
	block.HeaderEnd = off
	dest.HeaderEnd = off

	sql := strings.TrimSpace(text[block.HeaderEnd:block.End])
	sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	if sql == "" {
		return nil, false
	}
	block.SQL = sql

	for _, dst := range block.Destinations {
		dst.Config = directive.FromValues(dst.Values, dst.PreFiles)
	}
	return block, true
}

func (d *Document) newDestination(index, headerStart int) *Destination {
	dest := &Destination{
		Index:       index,
		Values:      make(map[string]string, len(d.Defaults)),
		Provenance:  make(map[string]Provenance, len(d.Defaults)),
		HeaderStart: headerStart,
	}
	for k, v := range d.Defaults {
		dest.Values[k] = v
		dest.Provenance[k] = ProvenanceDefault
	}
	if len(d.DefaultPreFiles) > 0 {
		dest.PreFiles = append([]string(nil), d.DefaultPreFiles...)
		dest.Provenance[string(directive.KeyPreFile)] = ProvenanceDefault
	}
	return dest
}

func (dest *Destination) apply(l Line) {
	dest.Lines = append(dest.Lines, l)
	dest.Provenance[l.Key] = ProvenanceQuery
	if l.Key == string(directive.KeyPreFile) {
		dest.PreFiles = appendUnique(dest.PreFiles, l.Value)
		return
	}
	dest.Values[l.Key] = l.Value
}

func matchDirective(text string, ln line) (Line, bool) {
	raw := text[ln.start:ln.end]
	m := directivePattern.FindStringSubmatchIndex(raw)
	if m == nil {
		return Line{}, false
	}
	key := raw[m[2]:m[3]]
	if !directive.IsKnown(key) {
		return Line{}, false
	}
	return Line{
		Key:       key,
		Value:     raw[m[4]:m[5]],
		Span:      Span{ln.start, ln.end},
		ValueSpan: Span{ln.start + m[4], ln.start + m[5]},
	}, true
}

func isHeaderLine(raw string) bool {
	t := strings.TrimSpace(raw)
	return t == "" || strings.HasPrefix(t, "--")
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
