package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_AppliesSchemaAndPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(path,
		WithMkdirAll(),
		WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO t (name) VALUES ('x')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpen_BadSchemaClosesDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	if _, err := Open(path, WithSchema(`NOT VALID SQL`)); err == nil {
		t.Error("expected schema error")
	}
}

func TestOpenMemory_SingleConnection(t *testing.T) {
	// WHY: each connection to :memory: is a distinct database; without
	// MaxOpenConns(1) a second query could land on an empty one.
	db := OpenMemory(t, WithSchema(`CREATE TABLE m (v INTEGER)`))
	if _, err := db.Exec(`INSERT INTO m (v) VALUES (7)`); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := db.QueryRow(`SELECT v FROM m`).Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != 7 {
		t.Errorf("v = %d, want 7", v)
	}
}
