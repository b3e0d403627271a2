package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateMigrationsDir(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestMigrationsCoverCoreTables(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	var all strings.Builder
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := os.ReadFile(filepath.Join("migrations", e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		all.Write(b)
	}

	sql := all.String()
	for _, table := range []string{"webhook_events", "orders", "receipts", "receipt_jobs"} {
		if !strings.Contains(sql, "CREATE TABLE "+table) {
			t.Errorf("no migration creates table %s", table)
		}
	}
	for _, index := range []string{"idx_webhook_events_event_id", "idx_receipts_payment_reference", "idx_receipt_jobs_event_id"} {
		if !strings.Contains(sql, "CREATE UNIQUE INDEX "+index) {
			t.Errorf("missing unique index %s", index)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Something New!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_something_new.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}
