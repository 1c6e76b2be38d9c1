package store

import (
	"database/sql"
	"time"
)

// Role is the participation kind implied by a source fact table.
type Role string

const (
	RoleBatting  Role = "batting"
	RolePitching Role = "pitching"
)

// FactTable identifies a scraper-owned box-score table carrying a nullable
// player_id column.
type FactTable string

const (
	FactBatting  FactTable = "game_batting_stats"
	FactPitching FactTable = "game_pitching_stats"
	FactLineups  FactTable = "game_lineups"
)

// FactTables lists every table the resolver processes, in run order.
var FactTables = []FactTable{FactBatting, FactPitching, FactLineups}

// Role returns the participation role a table implies. Lineup rows are
// batting-order entries, so they resolve against batting participation.
func (t FactTable) Role() Role {
	if t == FactPitching {
		return RolePitching
	}
	return RoleBatting
}

// Valid reports whether t is one of the known fact tables.
func (t FactTable) Valid() bool {
	switch t {
	case FactBatting, FactPitching, FactLineups:
		return true
	}
	return false
}

// Player represents an identity record for a person who has appeared in the
// league. Stable numeric identifier; never deleted.
type Player struct {
	PlayerID  int            `json:"player_id" db:"player_id"`
	Name      string         `json:"name" db:"name"`
	UniformNo sql.NullString `json:"uniform_no,omitempty" db:"uniform_no"`
	Team      sql.NullString `json:"team,omitempty" db:"team"`
	Career    sql.NullString `json:"career,omitempty" db:"career"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Franchise is the persistent organizational identity of a club. It survives
// renames and relocations and is never deleted.
type Franchise struct {
	FranchiseID  int           `json:"franchise_id" db:"franchise_id"`
	Name         string        `json:"name" db:"name"`
	CurrentCode  string        `json:"current_code" db:"current_code"`
	FoundedYear  sql.NullInt32 `json:"founded_year,omitempty" db:"founded_year"`
	DefunctYear  sql.NullInt32 `json:"defunct_year,omitempty" db:"defunct_year"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// TeamCodeAlias maps a raw team-code token to a franchise within a validity
// window. Codes are reused by different franchises in different eras, so
// lookups are always season-scoped.
type TeamCodeAlias struct {
	AliasID     int           `json:"alias_id" db:"alias_id"`
	FranchiseID int           `json:"franchise_id" db:"franchise_id"`
	Code        string        `json:"code" db:"code"`
	FirstSeason int           `json:"first_season" db:"first_season"`
	LastSeason  sql.NullInt32 `json:"last_season,omitempty" db:"last_season"` // open-ended when NULL
}

// NameAlias maps a deprecated player name to the name identity records are
// stored under today. Global, not season-scoped.
type NameAlias struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// Override is a maintainer-curated resolution for one fact group. It is
// keyed on the raw observed name, before alias normalization, and always
// wins over automatic candidate generation.
type Override struct {
	SourceTable      FactTable `json:"source_table"`
	Year             int       `json:"year"`
	TeamCode         string    `json:"team_code"`
	PlayerName       string    `json:"player_name"`
	ResolvedPlayerID int       `json:"resolved_player_id"`
	Reason           string    `json:"reason"`
	EvidenceSource   string    `json:"evidence_source"`
}

// ParticipationRecord is one (player, season, team, role) observation derived
// from the season-aggregate tables. Immutable per built season.
type ParticipationRecord struct {
	PlayerID int    `json:"player_id" db:"player_id"`
	Name     string `json:"name" db:"name"`
	Season   int    `json:"season" db:"season"`
	TeamCode string `json:"team_code" db:"team_code"`
	Role     Role   `json:"role" db:"role"`
}

// FactGroup is a bucket of fact rows sharing (table, season, team, name)
// that are missing a player identifier. Resolution runs once per group and
// the written identifier is applied to every row in the bucket.
type FactGroup struct {
	Table      FactTable `json:"source_table"`
	Season     int       `json:"year"`
	TeamCode   string    `json:"team_code"`
	PlayerName string    `json:"player_name"`
	RowCount   int       `json:"unresolved_rows"`
}
