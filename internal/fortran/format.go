// Package fortran parses Fortran edit descriptors such as
// "(F10.5, 2I4, 1X, 70(F12.3,a1))" into fixed-width column layouts.
package fortran

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the type of a column.
type Kind int

const (
	Float Kind = iota
	Int
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	}
	return "unknown"
}

// Column is a field of a fixed-width line, covering bytes [Start, End).
type Column struct {
	Start int
	End   int
	Kind  Kind
}

var (
	groupRe  = regexp.MustCompile(`^(\d+)\((.*)\)$`)
	repeatRe = regexp.MustCompile(`(?i)^(\d+)([A-Z]\d+(\.\d+)?)$`)
	floatRe  = regexp.MustCompile(`(?i)^[FEDG](\d+)\.(\d+)$`)
	intRe    = regexp.MustCompile(`(?i)^I(\d+)$`)
	skipRe   = regexp.MustCompile(`(?i)^(\d+)X$`)
	charRe   = regexp.MustCompile(`(?i)^A(\d+)$`)
)

// Parse returns the columns described by a format string. Skipped characters
// (nX) advance the position without producing a column.
func Parse(format string) ([]Column, error) {
	format = strings.TrimSpace(format)
	if strings.HasPrefix(format, "(") && strings.HasSuffix(format, ")") {
		format = strings.TrimSpace(format[1 : len(format)-1])
	}
	p := &parser{}
	if err := p.list(format); err != nil {
		return nil, err
	}
	return p.cols, nil
}

type parser struct {
	pos  int
	cols []Column
}

func (p *parser) add(width int, k Kind) {
	p.cols = append(p.cols, Column{Start: p.pos, End: p.pos + width, Kind: k})
	p.pos += width
}

// list parses comma-separated tokens, splitting only at the top level.
func (p *parser) list(s string) error {
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses in %q", s)
			}
		case ',':
			if depth == 0 {
				if err := p.token(s[start:i]); err != nil {
					return err
				}
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses in %q", s)
	}
	return p.token(s[start:])
}

func (p *parser) token(tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil
	}
	if m := groupRe.FindStringSubmatch(tok); m != nil {
		n, _ := strconv.Atoi(m[1])
		for range n {
			if err := p.list(m[2]); err != nil {
				return err
			}
		}
		return nil
	}
	if m := repeatRe.FindStringSubmatch(tok); m != nil {
		n, _ := strconv.Atoi(m[1])
		for range n {
			if err := p.token(m[2]); err != nil {
				return err
			}
		}
		return nil
	}
	if m := floatRe.FindStringSubmatch(tok); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, Float)
		return nil
	}
	if m := intRe.FindStringSubmatch(tok); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, Int)
		return nil
	}
	if m := skipRe.FindStringSubmatch(tok); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.pos += w
		return nil
	}
	if m := charRe.FindStringSubmatch(tok); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, String)
		return nil
	}
	if strings.HasPrefix(tok, "(") && strings.HasSuffix(tok, ")") {
		return p.list(tok[1 : len(tok)-1])
	}
	return fmt.Errorf("unrecognised format token %q", tok)
}

// Split cuts a line into trimmed fields. Fields beyond the end of the line
// are empty.
func Split(line string, cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c.Start >= len(line) {
			continue
		}
		end := min(c.End, len(line))
		out[i] = strings.TrimSpace(line[c.Start:end])
	}
	return out
}

// Widths returns the columns of consecutive fields of the given widths.
func Widths(kinds []Kind, widths ...int) []Column {
	cols := make([]Column, len(widths))
	pos := 0
	for i, w := range widths {
		k := Float
		if i < len(kinds) {
			k = kinds[i]
		}
		cols[i] = Column{Start: pos, End: pos + w, Kind: k}
		pos += w
	}
	return cols
}
