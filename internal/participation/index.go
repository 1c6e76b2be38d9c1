// Package participation builds the per-season lookup from the
// season-aggregate tables: (name, team code, role) to the set of player
// identifiers observed for that team and season.
package participation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/store"
)

// Source supplies the season-aggregate rows the index is built from.
type Source interface {
	ListBySeason(ctx context.Context, season int) ([]store.ParticipationRecord, error)
}

type entryKey struct {
	name string
	code string
	role store.Role
}

// Index is the Season Participation Index for exactly one season. It is an
// explicit per-season context object passed into resolution calls, never
// hidden process-wide state, and is read-only once built. Aggregates are
// immutable per built season, so an index may be cached indefinitely.
type Index struct {
	season  int
	records []store.ParticipationRecord
	byKey   map[entryKey]map[int]struct{}
}

// Build preloads one season by a single pass over the batting and pitching
// aggregate tables.
func Build(ctx context.Context, src Source, season int) (*Index, error) {
	records, err := src.ListBySeason(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("building participation index for %d: %w", season, err)
	}
	return NewIndex(season, records), nil
}

// NewIndex indexes an explicit record set (cache restores and tests).
func NewIndex(season int, records []store.ParticipationRecord) *Index {
	idx := &Index{
		season:  season,
		records: records,
		byKey:   make(map[entryKey]map[int]struct{}),
	}
	for _, rec := range records {
		k := entryKey{
			name: strings.TrimSpace(rec.Name),
			code: franchise.NormalizeCode(rec.TeamCode),
			role: rec.Role,
		}
		ids, ok := idx.byKey[k]
		if !ok {
			ids = make(map[int]struct{})
			idx.byKey[k] = ids
		}
		ids[rec.PlayerID] = struct{}{}
	}
	return idx
}

// Season returns the season the index was built for.
func (idx *Index) Season() int {
	return idx.season
}

// Records returns the raw record set the index was built from, for cache
// snapshots.
func (idx *Index) Records() []store.ParticipationRecord {
	return idx.records
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Candidates returns every player identifier observed under the given name
// for any code in the team family, batting or pitching. Sorted ascending.
func (idx *Index) Candidates(name string, family []string) []int {
	ids := make(map[int]struct{})
	idx.collect(ids, name, family, store.RoleBatting)
	idx.collect(ids, name, family, store.RolePitching)
	return sorted(ids)
}

// Lookup narrows to identifiers with a participation record in one role.
// Sorted ascending.
func (idx *Index) Lookup(name string, family []string, role store.Role) []int {
	ids := make(map[int]struct{})
	idx.collect(ids, name, family, role)
	return sorted(ids)
}

func (idx *Index) collect(into map[int]struct{}, name string, family []string, role store.Role) {
	name = strings.TrimSpace(name)
	for _, code := range family {
		k := entryKey{name: name, code: franchise.NormalizeCode(code), role: role}
		for id := range idx.byKey[k] {
			into[id] = struct{}{}
		}
	}
}

func sorted(ids map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
