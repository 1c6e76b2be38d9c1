// Package alias holds the curated player name alias table: deprecated
// names mapped to the name identity records are stored under today.
// Aliases are maintained by hand, never inferred.
package alias

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table maps former names to current names. Global, not season-scoped;
// applied exactly once before any index lookup.
type Table struct {
	names map[string]string
}

// NewTable builds a table from explicit pairs (used by tests and seeds).
func NewTable(aliases map[string]string) *Table {
	names := make(map[string]string, len(aliases))
	for old, current := range aliases {
		old = strings.TrimSpace(old)
		current = strings.TrimSpace(current)
		if old != "" && current != "" && old != current {
			names[old] = current
		}
	}
	return &Table{names: names}
}

// LoadTable reads the curated alias CSV (old_name,new_name header). A
// missing file yields an empty table: aliases are optional.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTable(nil), nil
		}
		return nil, fmt.Errorf("opening alias file: %w", err)
	}
	defer f.Close()

	table, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading alias file %s: %w", path, err)
	}
	return table, nil
}

func readTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return NewTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	oldIdx, newIdx := columnIndexes(header)
	if oldIdx < 0 || newIdx < 0 {
		return nil, fmt.Errorf("alias file missing old_name/new_name columns")
	}

	aliases := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading alias row: %w", err)
		}
		if len(record) <= oldIdx || len(record) <= newIdx {
			continue
		}
		aliases[record[oldIdx]] = record[newIdx]
	}

	return NewTable(aliases), nil
}

func columnIndexes(header []string) (oldIdx, newIdx int) {
	oldIdx, newIdx = -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case "old_name":
			oldIdx = i
		case "new_name":
			newIdx = i
		}
	}
	return oldIdx, newIdx
}

// Normalize maps a name through the alias table. Pure and total: names
// without an alias pass through unchanged.
func (t *Table) Normalize(name string) string {
	if current, ok := t.names[name]; ok {
		return current
	}
	return name
}

// Has reports whether a name has an alias entry.
func (t *Table) Has(name string) bool {
	_, ok := t.names[name]
	return ok
}

// Len returns the number of alias entries.
func (t *Table) Len() int {
	return len(t.names)
}
