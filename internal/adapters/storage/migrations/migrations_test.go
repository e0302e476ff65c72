package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if _, current, err := Status(db, SQLite); err != nil || current {
		t.Fatalf("Status() before migrate = %v, %v", current, err)
	}
	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"identities", "servers", "channels", "memberships", "applications", "presence", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}

	if v, current, err := Status(db, SQLite); err != nil || !current || v != 1 {
		t.Errorf("Status() after migrate = %d, %v, %v", v, current, err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatal(err)
	}
	if err := MigrateUp(db, SQLite); err != nil {
		t.Errorf("second MigrateUp() = %v, want nil", err)
	}
}

func TestMigrateUp_UnknownDialect(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db, "oracle"); err == nil {
		t.Fatal("MigrateUp(oracle) succeeded")
	}
}
