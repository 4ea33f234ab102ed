package migrate

import (
	"testing"

	"arremate/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var rows int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	migrations, err := embeddedMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if rows != len(migrations) {
		t.Fatalf("schema_version rows = %d, want one per migration (%d)", rows, len(migrations))
	}

	var version int
	var name string
	if err := conn.QueryRow(`SELECT version, name FROM schema_version ORDER BY version LIMIT 1`).Scan(&version, &name); err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if version != 1 || name != "0001_init.sql" {
		t.Fatalf("first ledger entry %d %s", version, name)
	}

	// The schema itself must be in place.
	if _, err := conn.Exec(`SELECT id FROM assets LIMIT 1`); err != nil {
		t.Fatalf("assets table missing: %v", err)
	}
}
