// Package storetest provides an in-memory SQLite database carrying the
// application schema, for tests of code built on the store package.
package storetest

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clausify/clausify/internal/store"
)

var sqliteReplacer = strings.NewReplacer(
	"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
	"TIMESTAMPTZ", "TIMESTAMP",
	"NOW()", "CURRENT_TIMESTAMP",
	"UUID NOT NULL", "TEXT NOT NULL",
	"BIGINT", "INTEGER",
)

// SchemaSQL returns the application schema translated to SQLite types
func SchemaSQL() string {
	return sqliteReplacer.Replace(store.SchemaSQL())
}

// NewDB opens a fresh in-memory database with the schema applied
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// A single connection keeps every query on the same in-memory database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SchemaSQL()); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
