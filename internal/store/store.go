package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Store persists completed runs: configuration, trade log, and per-tick
// metric series. The deterministic core never touches it; the entrypoint
// and the API record a run when it starts and write its trades and metrics
// after it finishes.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(dbPath string) (*Store, error) {
	// Shared cache lets concurrent connections see an in-memory database.
	if dbPath == ":memory:" {
		dbPath = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
