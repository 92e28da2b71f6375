package tomldoc

import (
	"bytes"
	"fmt"
)

// The scanner indexes the byte spans of a TOML document so edits can splice
// only the bytes they touch. It does not interpret values; semantic checks
// run against the parsed tree, and every spliced result is re-parsed before
// it replaces the document.

// entry records one key-value expression inside a section.
type entry struct {
	// key is the dotted key, one element per (unquoted) part.
	key []string

	// lineStart/lineEnd span the whole expression including its trailing
	// newline and any same-line comment.
	lineStart int
	lineEnd   int

	// valStart/valEnd span the value text, trimmed of surrounding space.
	valStart int
	valEnd   int
}

// section records one table region. The implicit root section has a nil
// path and no header.
type section struct {
	path  []string
	array bool

	// headStart/headEnd span the header line including its newline.
	// Both are zero for the root section.
	headStart int
	headEnd   int

	// bodyEnd is the offset where the section's body stops: the start of
	// the next header, or the end of the input.
	bodyEnd int

	entries []entry
}

// index is the span map of one document.
type index struct {
	// sections[0] is the implicit root section.
	sections []*section
}

// scan builds the span index for data. The input is expected to be valid
// TOML; scan reports positions, not full validity.
func scan(data []byte) (*index, error) {
	root := &section{}
	idx := &index{sections: []*section{root}}
	cur := root

	pos := 0
	for pos < len(data) {
		lineStart := pos
		p := skipInline(data, pos)
		if p >= len(data) {
			break
		}

		switch data[p] {
		case '\n', '\r':
			pos = endOfLine(data, p)

		case '#':
			pos = endOfLine(data, p)

		case '[':
			arr := p+1 < len(data) && data[p+1] == '['
			kp := p + 1
			if arr {
				kp++
			}
			key, kend, err := scanKey(data, kp)
			if err != nil {
				return nil, err
			}
			q := skipInline(data, kend)
			closers := 1
			if arr {
				closers = 2
			}
			for i := 0; i < closers; i++ {
				if q >= len(data) || data[q] != ']' {
					return nil, fmt.Errorf("offset %d: unterminated table header", lineStart)
				}
				q++
			}
			end := endOfLine(data, q)

			cur.bodyEnd = lineStart
			cur = &section{path: key, array: arr, headStart: lineStart, headEnd: end}
			idx.sections = append(idx.sections, cur)
			pos = end

		default:
			key, kend, err := scanKey(data, p)
			if err != nil {
				return nil, err
			}
			q := skipInline(data, kend)
			if q >= len(data) || data[q] != '=' {
				return nil, fmt.Errorf("offset %d: expected '=' after key", q)
			}
			q = skipInline(data, q+1)
			valStart := q
			valEnd, rest, err := scanValue(data, q)
			if err != nil {
				return nil, err
			}
			end := endOfLine(data, rest)
			cur.entries = append(cur.entries, entry{
				key:       key,
				lineStart: lineStart,
				lineEnd:   end,
				valStart:  valStart,
				valEnd:    valEnd,
			})
			pos = end
		}
	}
	cur.bodyEnd = len(data)
	return idx, nil
}

// scanKey reads a possibly dotted, possibly quoted key starting at p.
// It returns the unquoted parts and the offset just past the key.
func scanKey(data []byte, p int) ([]string, int, error) {
	var parts []string
	for {
		p = skipInline(data, p)
		if p >= len(data) {
			return nil, p, fmt.Errorf("offset %d: unexpected end of key", p)
		}
		if c := data[p]; c == '"' || c == '\'' {
			part, np, err := scanQuotedKeyPart(data, p)
			if err != nil {
				return nil, p, err
			}
			parts = append(parts, part)
			p = np
		} else {
			start := p
			for p < len(data) && isBareKeyChar(data[p]) {
				p++
			}
			if p == start {
				return nil, p, fmt.Errorf("offset %d: invalid key character %q", p, data[p])
			}
			parts = append(parts, string(data[start:p]))
		}
		q := skipInline(data, p)
		if q < len(data) && data[q] == '.' {
			p = q + 1
			continue
		}
		return parts, p, nil
	}
}

// scanQuotedKeyPart reads a single-line quoted key part and returns its
// decoded content.
func scanQuotedKeyPart(data []byte, p int) (string, int, error) {
	quote := data[p]
	i := p + 1
	var buf bytes.Buffer
	for i < len(data) {
		c := data[i]
		switch {
		case c == quote:
			return buf.String(), i + 1, nil
		case c == '\n':
			return "", 0, fmt.Errorf("offset %d: unterminated quoted key", p)
		case quote == '"' && c == '\\' && i+1 < len(data):
			buf.WriteByte(data[i+1])
			i += 2
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("offset %d: unterminated quoted key", p)
}

// scanValue finds the extent of the value starting at p. It returns the
// trimmed end of the value and the offset where trailing-comment scanning
// resumes. Strings, nested brackets, and comments inside multiline arrays
// are honored.
func scanValue(data []byte, p int) (valEnd, rest int, err error) {
	depth := 0
	i := p
	last := p
	for i < len(data) {
		c := data[i]
		switch {
		case c == '"' || c == '\'':
			ni, err := skipString(data, i)
			if err != nil {
				return 0, 0, err
			}
			i = ni
			last = i
			continue

		case c == '[' || c == '{':
			depth++

		case c == ']' || c == '}':
			depth--
			if depth < 0 {
				return 0, 0, fmt.Errorf("offset %d: unbalanced %q", i, c)
			}

		case c == '#':
			if depth == 0 {
				return last, i, nil
			}
			i = endOfLine(data, i)
			continue

		case c == '\n':
			if depth == 0 {
				return last, i, nil
			}
			i++
			continue

		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		}
		i++
		last = i
	}
	if depth != 0 {
		return 0, 0, fmt.Errorf("offset %d: unterminated value", p)
	}
	return last, len(data), nil
}

// skipString advances past the string literal whose opening quote is at p.
func skipString(data []byte, p int) (int, error) {
	quote := data[p]
	if p+2 < len(data) && data[p+1] == quote && data[p+2] == quote {
		term := []byte{quote, quote, quote}
		i := p + 3
		for i < len(data) {
			if quote == '"' && data[i] == '\\' {
				i += 2
				continue
			}
			if bytes.HasPrefix(data[i:], term) {
				i += 3
				// TOML permits up to two adjacent closing quotes.
				for n := 0; n < 2 && i < len(data) && data[i] == quote; n++ {
					i++
				}
				return i, nil
			}
			i++
		}
		return 0, fmt.Errorf("offset %d: unterminated multiline string", p)
	}

	i := p + 1
	for i < len(data) {
		c := data[i]
		switch {
		case quote == '"' && c == '\\':
			i += 2
		case c == quote:
			return i + 1, nil
		case c == '\n':
			return 0, fmt.Errorf("offset %d: unterminated string", p)
		default:
			i++
		}
	}
	return 0, fmt.Errorf("offset %d: unterminated string", p)
}

// scanElems splits the inline array spanning [valStart, valEnd) into
// trimmed element spans.
func scanElems(data []byte, valStart, valEnd int) ([][2]int, error) {
	if valStart >= len(data) || data[valStart] != '[' {
		return nil, fmt.Errorf("offset %d: not an inline array", valStart)
	}
	var elems [][2]int
	depth := 1
	start, last := -1, -1
	p := valStart + 1
	for p < valEnd {
		c := data[p]
		switch {
		case c == '"' || c == '\'':
			np, err := skipString(data, p)
			if err != nil {
				return nil, err
			}
			if start == -1 {
				start = p
			}
			last = np
			p = np
			continue

		case c == '#':
			p = endOfLine(data, p)
			continue

		case c == '[' || c == '{':
			if start == -1 {
				start = p
			}
			depth++
			last = p + 1

		case c == ']' || c == '}':
			depth--
			if depth == 0 {
				if start != -1 {
					elems = append(elems, [2]int{start, last})
				}
				return elems, nil
			}
			last = p + 1

		case c == ',':
			if depth == 1 {
				if start == -1 {
					return nil, fmt.Errorf("offset %d: empty array element", p)
				}
				elems = append(elems, [2]int{start, last})
				start, last = -1, -1
			} else {
				last = p + 1
			}

		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			// insignificant

		default:
			if start == -1 {
				start = p
			}
			last = p + 1
		}
		p++
	}
	return nil, fmt.Errorf("offset %d: unterminated array", valStart)
}

// skipInline advances past spaces and tabs.
func skipInline(data []byte, p int) int {
	for p < len(data) && (data[p] == ' ' || data[p] == '\t') {
		p++
	}
	return p
}

// endOfLine returns the offset just past the next newline, or len(data).
func endOfLine(data []byte, p int) int {
	for p < len(data) {
		if data[p] == '\n' {
			return p + 1
		}
		p++
	}
	return p
}

func isBareKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	default:
		return false
	}
}
