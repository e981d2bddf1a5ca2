package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

// OpenFromEnv selects a Store from COFFER_LEDGER_BACKEND:
//
//	memory    in-process, non-durable (default)
//	sqlite    embedded file database at COFFER_SQLITE_PATH
//	postgres  server database at COFFER_POSTGRES_DSN
func OpenFromEnv(ctx context.Context) (Store, error) {
	switch backend := os.Getenv("COFFER_LEDGER_BACKEND"); backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := os.Getenv("COFFER_SQLITE_PATH")
		if path == "" {
			path = "coffer.db"
		}
		return NewSQLiteStore(path)
	case "postgres":
		dsn := os.Getenv("COFFER_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("ledger: COFFER_POSTGRES_DSN is required for the postgres backend")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("ledger: open postgres: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.Init(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", backend)
	}
}
