/*
Package sqlite opens a SQLite-backed documents store.

PURPOSE:
  Local and test deployments keep the documents table in a single SQLite
  file. The gateway itself lives in store/sqlstore; this package only knows
  how to open the file.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery if an ingestion run is killed mid-batch

USAGE:
  store, err := sqlite.New("./data/docflow.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  // ":memory:" is an in-memory database, handy in tests.

SEE ALSO:
  - store/sqlstore/sqlstore.go: Gateway implementation
  - store/postgres/postgres.go: PostgreSQL counterpart
*/
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/celluledoc/docflow/store/sqlstore"
)

// New opens the database at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and every
	// connection to ":memory:" would otherwise see its own database.
	db.SetMaxOpenConns(1)

	store, err := sqlstore.Open(db, sqlstore.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
