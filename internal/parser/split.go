package parser

// segment is a half-open byte range of one statement. end includes the
// terminating semicolon when there is one.
type segment struct {
	start, end int
}

// splitStatements splits text on semicolons that are outside string
// literals, quoted identifiers and comments.
func splitStatements(text string) []segment {
	var segs []segment
	start := 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'' || c == '"':
			i = skipQuoted(text, i, c)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i += 2
			for i+1 < len(text) && (text[i] != '*' || text[i+1] != '/') {
				i++
			}
			i++
		case c == ';':
			segs = append(segs, segment{start, i + 1})
			start = i + 1
		}
	}
	if start < len(text) {
		segs = append(segs, segment{start, len(text)})
	}
	return segs
}

// skipQuoted returns the index of the closing quote matching text[i].
// Doubled quotes are escapes and stay inside the literal.
func skipQuoted(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != quote {
			continue
		}
		if j+1 < len(text) && text[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return len(text)
}

// line is one physical line. end excludes the newline and any carriage return.
type line struct {
	start, end, next int
}

// lineAt returns the line that starts at offset from, bounded by limit.
func lineAt(text string, from, limit int) line {
	end := from
	for end < limit && text[end] != '\n' {
		end++
	}
	next := end
	if next < limit {
		next++
	}
	if end > from && text[end-1] == '\r' {
		end--
	}
	return line{start: from, end: end, next: next}
}
