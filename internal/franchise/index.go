package franchise

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fortuna/janus/internal/store"
)

var (
	// ErrNotFound means the code is known but no validity window covers the
	// requested season. Callers skip franchise attribution; they never guess
	// an adjacent era.
	ErrNotFound = errors.New("no franchise window covers season")

	// ErrUnknownCode means the code appears in no alias window at all. This
	// is surfaced loudly instead of silently degrading to "no candidates".
	ErrUnknownCode = errors.New("unknown team code")
)

// familyWindow bounds "nearby eras": sibling codes whose validity windows
// intersect season ± familyWindow join the team-code family. Rebrand-era
// sibling codes in the source never stray further than adjacent seasons.
const familyWindow = 2

// openEnded marks an alias window with no last_season.
const openEnded = math.MaxInt32

type window struct {
	code        string
	franchiseID int
	first       int
	last        int
}

func (w window) covers(season int) bool {
	return season >= w.first && season <= w.last
}

func (w window) intersects(lo, hi int) bool {
	return w.first <= hi && w.last >= lo
}

// Index answers season-scoped team-code lookups. Built once from the curated
// franchise and alias tables and held read-only afterwards.
type Index struct {
	byCode     map[string][]window
	franchises map[int]store.Franchise
}

// NewIndex validates and indexes the curated rows. An alias referencing an
// unknown franchise or two windows claiming the same code for overlapping
// seasons fail the load outright.
func NewIndex(franchises []store.Franchise, aliases []store.TeamCodeAlias) (*Index, error) {
	idx := &Index{
		byCode:     make(map[string][]window),
		franchises: make(map[int]store.Franchise, len(franchises)),
	}

	for _, f := range franchises {
		idx.franchises[f.FranchiseID] = f
	}

	for _, a := range aliases {
		code := NormalizeCode(a.Code)
		if code == "" {
			return nil, fmt.Errorf("alias %d has an empty code", a.AliasID)
		}
		if _, ok := idx.franchises[a.FranchiseID]; !ok {
			return nil, fmt.Errorf("alias %q references unknown franchise %d", code, a.FranchiseID)
		}

		w := window{code: code, franchiseID: a.FranchiseID, first: a.FirstSeason, last: openEnded}
		if a.LastSeason.Valid {
			w.last = int(a.LastSeason.Int32)
		}
		if w.last < w.first {
			return nil, fmt.Errorf("alias %q window ends (%d) before it starts (%d)", code, w.last, w.first)
		}
		idx.byCode[code] = append(idx.byCode[code], w)
	}

	for code, windows := range idx.byCode {
		sort.Slice(windows, func(i, j int) bool { return windows[i].first < windows[j].first })
		for i := 1; i < len(windows); i++ {
			if windows[i].first <= windows[i-1].last {
				return nil, fmt.Errorf("code %q has overlapping validity windows (%d-%d and %d-%d)",
					code, windows[i-1].first, windows[i-1].last, windows[i].first, windows[i].last)
			}
		}
		idx.byCode[code] = windows
	}

	return idx, nil
}

// Resolve maps a raw team code observed in a given season to its franchise
// identifier. The lookup intersects on the validity window, not code
// equality alone; a code outside every window is never matched against an
// adjacent era.
func (idx *Index) Resolve(rawCode string, season int) (int, error) {
	code := NormalizeCode(rawCode)
	windows, ok := idx.byCode[code]
	if !ok {
		return 0, fmt.Errorf("code %q: %w", code, ErrUnknownCode)
	}

	for _, w := range windows {
		if w.covers(season) {
			return w.franchiseID, nil
		}
	}
	return 0, fmt.Errorf("code %q season %d: %w", code, season, ErrNotFound)
}

// Family expands a team code into its historical-family variants for a
// season: the sibling codes of the owning franchise whose windows intersect
// season ± 2 years. A player's aggregate row and the fact row may be
// recorded under sibling codes in the same season due to upstream
// inconsistency, so candidate lookups query the whole family.
//
// The queried code itself is always first in the returned slice.
func (idx *Index) Family(rawCode string, season int) ([]string, error) {
	code := NormalizeCode(rawCode)
	windows, ok := idx.byCode[code]
	if !ok {
		return nil, fmt.Errorf("code %q: %w", code, ErrUnknownCode)
	}

	lo, hi := season-familyWindow, season+familyWindow

	// Owner is the franchise whose window covers the season, or failing
	// that, the nearest window of this code inside the widened range.
	ownerID := 0
	bestDist := math.MaxInt32
	for _, w := range windows {
		if w.covers(season) {
			ownerID = w.franchiseID
			bestDist = 0
			break
		}
		if !w.intersects(lo, hi) {
			continue
		}
		dist := w.first - season
		if season > w.last {
			dist = season - w.last
		}
		if dist < bestDist {
			bestDist = dist
			ownerID = w.franchiseID
		}
	}
	if ownerID == 0 {
		return nil, fmt.Errorf("code %q season %d: %w", code, season, ErrNotFound)
	}

	family := []string{code}
	seen := map[string]bool{code: true}
	for sibling, sibWindows := range idx.byCode {
		if seen[sibling] {
			continue
		}
		for _, w := range sibWindows {
			if w.franchiseID == ownerID && w.intersects(lo, hi) {
				family = append(family, sibling)
				seen[sibling] = true
				break
			}
		}
	}
	sort.Strings(family[1:])

	return family, nil
}

// Franchise returns the franchise record for an identifier.
func (idx *Index) Franchise(franchiseID int) (store.Franchise, bool) {
	f, ok := idx.franchises[franchiseID]
	return f, ok
}

// Franchises returns every franchise record, ordered by identifier.
func (idx *Index) Franchises() []store.Franchise {
	out := make([]store.Franchise, 0, len(idx.franchises))
	for _, f := range idx.franchises {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FranchiseID < out[j].FranchiseID })
	return out
}

// NormalizeCode upper-cases and trims a raw team-code token.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
