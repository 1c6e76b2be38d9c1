// Package evidence parses saved box-score HTML snapshots. Curators capture
// a page once, and override entries cite the saved file; parsing the file
// offline lets a reviewer confirm that the cited evidence really shows the
// player the override asserts.
package evidence

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one player row extracted from a snapshot table.
type Entry struct {
	Name      string `json:"name"`
	UniformNo string `json:"uniform_no,omitempty"`
	// SourcePlayerID is the site's own player identifier when the row
	// carries a profile link. It is evidence for curators, never an
	// identifier this system assigns.
	SourcePlayerID string `json:"source_player_id,omitempty"`
	Table          string `json:"table,omitempty"`
}

// Snapshot is the parsed content of one saved box-score page.
type Snapshot struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// ParseFile parses a saved box-score HTML file.
func ParseFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()

	snap, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	snap.Path = path
	return snap, nil
}

// Parse extracts player rows from every table in the document. A row
// counts when it carries a player profile link or a recognized name
// column; the first purely numeric cell is taken as the uniform number.
func Parse(r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	snap := &Snapshot{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		tableID := table.AttrOr("id", "")
		nameIndex := nameColumnIndex(table)

		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			entry := Entry{Table: tableID}

			cells := tr.Find("th,td")
			if first := strings.TrimSpace(cells.First().Text()); digitsOnly.MatchString(first) {
				entry.UniformNo = first
			}

			if link := tr.Find(`a[href*="playerId="]`).First(); link.Length() > 0 {
				entry.Name = strings.TrimSpace(link.Text())
				entry.SourcePlayerID = playerIDFromHref(link.AttrOr("href", ""))
			} else if nameIndex >= 0 && cells.Length() > nameIndex {
				entry.Name = strings.TrimSpace(cells.Eq(nameIndex).Text())
			}

			if entry.Name != "" {
				snap.Entries = append(snap.Entries, entry)
			}
		})
	})

	return snap, nil
}

// Find returns the entries matching a player name exactly.
func (s *Snapshot) Find(name string) []Entry {
	var matched []Entry
	for _, entry := range s.Entries {
		if entry.Name == name {
			matched = append(matched, entry)
		}
	}
	return matched
}

// Supports reports whether the snapshot contains the named player, and the
// matching entries. An override whose evidence file does not mention the
// observed name deserves a second look before it ships.
func (s *Snapshot) Supports(name string) (bool, []Entry) {
	matched := s.Find(name)
	return len(matched) > 0, matched
}

// nameColumnIndex locates the player-name column by its header label.
// Box-score tables label it "선수명"; older pages use "선수".
func nameColumnIndex(table *goquery.Selection) int {
	index := -1
	table.Find("thead th").EachWithBreak(func(i int, th *goquery.Selection) bool {
		label := strings.TrimSpace(th.Text())
		if label == "선수명" || label == "선수" {
			index = i
			return false
		}
		return true
	})
	return index
}

func playerIDFromHref(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("playerId")
}
