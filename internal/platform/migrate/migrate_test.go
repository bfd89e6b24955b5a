package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000001_widgets.up.sql":   {Data: []byte(`CREATE TABLE widgets (id INTEGER PRIMARY KEY);`)},
		"000001_widgets.down.sql": {Data: []byte(`DROP TABLE widgets;`)},
		"000002_gadgets.up.sql":   {Data: []byte(`CREATE TABLE gadgets (id INTEGER PRIMARY KEY);`)},
		"000002_gadgets.down.sql": {Data: []byte(`DROP TABLE gadgets;`)},
	}
}

func TestUp_AppliesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	url := "sqlite://" + path

	require.NoError(t, Up(testMigrations(), url))
	require.NoError(t, Up(testMigrations(), url), "second run is a no-op")

	version, dirty, err := Version(testMigrations(), url)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, table := range []string{"widgets", "gadgets"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestVersion_EmptyDatabase(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "empty.db")

	version, dirty, err := Version(testMigrations(), url)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestUp_BrokenMigration(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "broken.db")
	broken := fstest.MapFS{
		"000001_bad.up.sql": {Data: []byte(`CREATE TABLE;`)},
	}
	assert.Error(t, Up(broken, url))
}
