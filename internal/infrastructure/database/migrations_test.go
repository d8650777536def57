package database

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	fsys := fstest.MapFS{}
	entries, _ := os.ReadDir("testdata") //nolint:errcheck // missing fixtures fail the assertions below
	for _, e := range entries {
		data, err := os.ReadFile("testdata/" + e.Name())
		if err != nil {
			continue
		}
		fsys[e.Name()] = &fstest.MapFile{Data: data}
	}
	return fsys
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_readings", "test_notes"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrationStatusFreshDatabase(t *testing.T) {
	db := openTestDB(t)

	applied, pending, err := db.MigrationStatus(context.Background(), testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() on a fresh database error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d, want 0", len(applied))
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestMigrateIgnoresNonUpFiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_first.up.sql":   {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"20260101_000000_first.down.sql": {Data: []byte("DROP TABLE first;")},
		"notes.txt":                      {Data: []byte("not a migration")},
	}

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 1 || migrations[0].Name != "first" {
		t.Fatalf("migrations = %+v, want [first]", migrations)
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "first") {
		t.Error("table first not created")
	}
}

func TestMigrateFailureStopsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_good.up.sql":  {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":   {Data: []byte("CREATE TABLE bad (id INTEGER); NOT SQL;")},
		"20260103_000000_later.up.sql": {Data: []byte("CREATE TABLE later (id INTEGER);")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() expected error for bad SQL")
	}

	if !tableExists(t, db, "good") {
		t.Error("earlier migration not committed")
	}
	if tableExists(t, db, "later") {
		t.Error("later migration applied after failure")
	}

	applied, _, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d, want 1", len(applied))
	}
}

func TestMigrateNilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantOK      bool
	}{
		{"20260101_120000_journal.up.sql", "20260101_120000", true},
		{"20260101_120000_journal.down.sql", "", false},
		{"20260101_120000.up.sql", "20260101_120000", true},
		{"20260101_120000_journal.sql", "", false},
		{"README.txt", "", false},
		{"nounderscore.up.sql", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, ok := parseMigrationFilename(tt.name)
			if version != tt.wantVersion || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v), want (%q, %v)",
					tt.name, version, ok, tt.wantVersion, tt.wantOK)
			}
		})
	}
}

func TestMigrationName(t *testing.T) {
	if got := migrationName("20261001_090000_journal_tables.up.sql"); got != "journal_tables" {
		t.Errorf("migrationName() = %q, want journal_tables", got)
	}
}
