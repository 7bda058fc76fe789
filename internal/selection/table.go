// Package selection reads the curation tables of a network: which data are
// released, how instruments are combined, which periods are excluded and
// which calibration scales are used.
package selection

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotReleased is returned for species that a release schedule does not
// release at a site.
var ErrNotReleased = errors.New("not released")

// table is a CSV file with '#' comment lines and a header row.
type table struct {
	comments []string
	header   []string
	rows     [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := parseTable(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return t, nil
}

func parseTable(r io.Reader) (*table, error) {
	t := &table{}
	var body bytes.Buffer
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			t.comments = append(t.comments, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#")))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(&body)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("missing header")
	}
	for i, h := range records[0] {
		records[0][i] = strings.TrimSpace(h)
	}
	t.header = records[0]
	for _, rec := range records[1:] {
		row := make([]string, len(t.header))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// column returns the index of a header, case-insensitively, or -1.
func (t *table) column(name string) int {
	for i, h := range t.header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// comment returns the value of a "# Key: value" comment line.
func (t *table) comment(key string) (string, bool) {
	for _, c := range t.comments {
		k, v, ok := strings.Cut(c, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func notUsed(cell string) bool {
	return cell == "" || strings.EqualFold(cell, "x")
}
