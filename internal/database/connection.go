package database

import (
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config selects and locates the local state database.
type Config struct {
	Type string // sqlite or postgres
	// Path is the sqlite file; ":memory:" keeps everything in memory.
	Path string
	// DSN is the postgres connection string.
	DSN string
}

// Connect opens the database and creates the schema if needed.
func Connect(cfg Config) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Type {
	case TypePostgres:
		db, err = sqlx.Connect("postgres", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to postgres")
		}
	case TypeSQLite, "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join("data", "examprep.db")
		}
		if path != ":memory:" {
			// Create data directory if it doesn't exist
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, errors.Wrap(err, "failed to create data directory")
			}
		}
		db, err = sqlx.Connect("sqlite3", path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to sqlite")
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS local_state (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create local_state table")
	}
	return nil
}
