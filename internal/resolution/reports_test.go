package resolution

import (
	"database/sql"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/store"
)

func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteReports(t *testing.T) {
	writer := NewReportWriter(t.TempDir())

	result := &RunResult{
		Applied: []AppliedEntry{
			{
				Outcome: Outcome{
					Group: store.FactGroup{
						Table: store.FactBatting, Season: 2016, TeamCode: "LG",
						PlayerName: "김현수", RowCount: 12,
					},
					State:            StateResolved,
					Method:           MethodRoleFilter,
					Reason:           ReasonSingleCandidate,
					ResolvedName:     "김현수",
					Uniforms:         []string{"50"},
					Candidates:       []int{1001},
					ResolvedPlayerID: 1001,
					FranchiseID:      sql.NullInt32{Int32: 5, Valid: true},
				},
				RowsUpdated: 12,
			},
		},
		Unresolved: []Outcome{
			{
				Group: store.FactGroup{
					Table: store.FactBatting, Season: 2016, TeamCode: "SK",
					PlayerName: "이재원", RowCount: 4,
				},
				State:        StateUnresolved,
				Reason:       ReasonAmbiguousCandidates,
				ResolvedName: "이재원",
				Candidates:   []int{4001, 4002},
			},
		},
	}

	appliedPath, unresolvedPath, err := writer.Write(result)
	require.NoError(t, err)

	applied := readReport(t, appliedPath)
	require.Len(t, applied, 2)
	assert.Equal(t, "source_table", applied[0][0])
	assert.Equal(t, "resolved_player_id", applied[0][len(applied[0])-2])
	assert.Equal(t, "updated_rows", applied[0][len(applied[0])-1])

	row := applied[1]
	assert.Equal(t, "game_batting_stats", row[0])
	assert.Equal(t, "2016", row[1])
	assert.Equal(t, "LG", row[2])
	assert.Equal(t, "김현수", row[3])
	assert.Equal(t, "12", row[4])
	assert.Equal(t, "50", row[5])
	assert.Equal(t, "1", row[6])
	assert.Equal(t, "1001", row[7])
	assert.Equal(t, "5", row[10])
	assert.Equal(t, "role filter", row[11])
	assert.Equal(t, "single role candidate", row[12])
	assert.Equal(t, "1001", row[len(row)-2])
	assert.Equal(t, "12", row[len(row)-1])

	unresolved := readReport(t, unresolvedPath)
	require.Len(t, unresolved, 2)
	assert.Equal(t, "이재원", unresolved[1][3])
	assert.Equal(t, "2", unresolved[1][6])
	assert.Equal(t, "4001,4002", unresolved[1][7])
	assert.Equal(t, "ambiguous candidates", unresolved[1][12])
}

func TestWriteReportsEmptyRun(t *testing.T) {
	writer := NewReportWriter(t.TempDir())

	appliedPath, unresolvedPath, err := writer.Write(&RunResult{})
	require.NoError(t, err)

	// Files exist with headers even when a run settles nothing; every run
	// leaves a complete audit trail.
	assert.Len(t, readReport(t, appliedPath), 1)
	assert.Len(t, readReport(t, unresolvedPath), 1)
}
