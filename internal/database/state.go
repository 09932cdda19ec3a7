package database

import (
	"database/sql"
	"path/filepath"
)

// StateFileName is the SQLite file holding device-local shared state: the
// pending action queue and the cached task projection.
const StateFileName = "state.db"

// OpenState opens the shared state database inside dir. Every process that
// produces or consumes actions on the device opens the same file.
func OpenState(dir string) (*sql.DB, error) {
	return Open(filepath.Join(dir, StateFileName))
}
