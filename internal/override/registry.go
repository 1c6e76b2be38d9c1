// Package override holds the maintainer-curated resolution registry.
// Overrides are written against raw facts, so lookups key on the observed
// name before alias normalization, and a matching override always wins.
package override

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/store"
)

// Key identifies one fact group an override applies to.
type Key struct {
	Table    store.FactTable
	Year     int
	TeamCode string
	Name     string
}

// Registry is the read-only set of curated overrides.
type Registry struct {
	entries map[Key]store.Override
}

// NewRegistry builds a registry from explicit entries (tests, seeds).
// Entries for unknown fact tables are rejected.
func NewRegistry(entries []store.Override) (*Registry, error) {
	reg := &Registry{entries: make(map[Key]store.Override, len(entries))}
	for _, e := range entries {
		if !e.SourceTable.Valid() {
			return nil, fmt.Errorf("override for unknown table %q", e.SourceTable)
		}
		e.TeamCode = franchise.NormalizeCode(e.TeamCode)
		e.PlayerName = strings.TrimSpace(e.PlayerName)
		reg.entries[keyOf(e)] = e
	}
	return reg, nil
}

// LoadRegistry reads the curated override CSV. Expected header:
// source_table,year,team_code,player_name,resolved_player_id,reason,evidence_source.
// A missing file yields an empty registry. Rows for unknown tables or with
// unparseable year/id fields are skipped, matching the curation contract:
// the file is maintained by hand and partial rows carry no authority.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{entries: map[Key]store.Override{}}, nil
		}
		return nil, fmt.Errorf("opening override file: %w", err)
	}
	defer f.Close()

	reg, err := readRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("reading override file %s: %w", path, err)
	}
	return reg, nil
}

func readRegistry(r io.Reader) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &Registry{entries: map[Key]store.Override{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, col := range header {
		cols[strings.TrimSpace(strings.ToLower(col))] = i
	}
	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	reg := &Registry{entries: make(map[Key]store.Override)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading override row: %w", err)
		}

		table := store.FactTable(field(record, "source_table"))
		if !table.Valid() {
			continue
		}
		name := field(record, "player_name")
		year, yearErr := strconv.Atoi(field(record, "year"))
		playerID, idErr := strconv.Atoi(field(record, "resolved_player_id"))
		if name == "" || yearErr != nil || idErr != nil {
			continue
		}

		entry := store.Override{
			SourceTable:      table,
			Year:             year,
			TeamCode:         franchise.NormalizeCode(field(record, "team_code")),
			PlayerName:       name,
			ResolvedPlayerID: playerID,
			Reason:           field(record, "reason"),
			EvidenceSource:   field(record, "evidence_source"),
		}
		reg.entries[keyOf(entry)] = entry
	}

	return reg, nil
}

// Lookup returns the override for a fact group, if one is curated. The name
// is the raw observed name, never the alias-normalized one.
func (r *Registry) Lookup(table store.FactTable, year int, teamCode, name string) (store.Override, bool) {
	entry, ok := r.entries[Key{
		Table:    table,
		Year:     year,
		TeamCode: franchise.NormalizeCode(teamCode),
		Name:     strings.TrimSpace(name),
	}]
	return entry, ok
}

// Len returns the number of curated overrides.
func (r *Registry) Len() int {
	return len(r.entries)
}

func keyOf(e store.Override) Key {
	return Key{Table: e.SourceTable, Year: e.Year, TeamCode: e.TeamCode, Name: e.PlayerName}
}
