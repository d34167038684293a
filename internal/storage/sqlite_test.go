package storage

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	for _, driver := range []string{DriverModernc, DriverCgo} {
		t.Run(driver, func(t *testing.T) {
			db, err := Open(driver, filepath.Join(t.TempDir(), "nested", "test.db"))
			require.NoError(t, err)
			defer db.Close()

			fsys := fstest.MapFS{
				"m/1_things.up.sql":   {Data: []byte(`CREATE TABLE things(id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
				"m/1_things.down.sql": {Data: []byte(`DROP TABLE things;`)},
			}
			require.NoError(t, Migrate(db, fsys, "m", "things_migrations", zerolog.Nop()))
			// second run is a no-op
			require.NoError(t, Migrate(db, fsys, "m", "things_migrations", zerolog.Nop()))

			_, err = db.Exec(`INSERT INTO things(name) VALUES ('a')`)
			require.NoError(t, err)
			var fk int
			require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
			require.Equal(t, 1, fk)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
}
