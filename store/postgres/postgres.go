/*
Package postgres opens a PostgreSQL-backed documents store.

PURPOSE:
  Production keeps the documents table in PostgreSQL, shared by the
  ingestion job and the review shell. The gateway lives in store/sqlstore.

USAGE:
  store, err := postgres.New(postgres.Options{
      Host: "localhost", Port: 5432, Name: "docflow", User: "docflow",
  })

SEE ALSO:
  - store/sqlstore/sqlstore.go: Gateway implementation
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/celluledoc/docflow/store/sqlstore"
)

// Options locates the database.
type Options struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string // defaults to "disable"
}

// DSN renders the options as a lib/pq connection URL.
func (o Options) DSN() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	host := o.Host
	if o.Port != 0 {
		host += ":" + strconv.Itoa(o.Port)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + o.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
		if o.Password == "" {
			u.User = url.User(o.User)
		}
	}
	return u.String()
}

// New connects to the database and verifies the connection.
func New(o Options) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", o.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database %s on %s: %w", o.Name, o.Host, err)
	}

	store, err := sqlstore.Open(db, sqlstore.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
