package alias

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePassThrough(t *testing.T) {
	table := NewTable(map[string]string{"한동민": "한유섬"})

	assert.Equal(t, "한유섬", table.Normalize("한동민"))
	assert.Equal(t, "김현수", table.Normalize("김현수"), "names without an alias pass through unchanged")
}

func TestNewTableSkipsDegeneratePairs(t *testing.T) {
	table := NewTable(map[string]string{
		"한동민": "한유섬",
		"":    "이름",
		"동명":  "동명",
		"공백":  "  ",
	})

	assert.Equal(t, 1, table.Len())
	assert.True(t, table.Has("한동민"))
	assert.False(t, table.Has("동명"))
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.csv")
	content := "old_name,new_name\n한동민,한유섬\n이호준,이호준\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, 1, table.Len(), "self-mappings are dropped")
	assert.Equal(t, "한유섬", table.Normalize("한동민"))
}

func TestLoadTableHeaderOrderIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.csv")
	content := "New_Name,Old_Name\n한유섬,한동민\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "한유섬", table.Normalize("한동민"))
}

func TestLoadTableMissingFile(t *testing.T) {
	table, err := LoadTable(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestLoadTableMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,alias\na,b\n"), 0o644))

	_, err := LoadTable(path)
	assert.Error(t, err)
}
