package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/semanticpdf/semanticpdf-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestUsersMigrationContainsBillingColumns(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"subscription_status subscription_status_enum NOT NULL DEFAULT 'inactive'",
		"current_period_end TIMESTAMPTZ",
		"CHECK (remaining_count >= 0)",
		"DROP TABLE IF EXISTS users",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFileChunksMigrationUsesVectorColumn(t *testing.T) {
	content := readMigration(t, "*_create_file_chunks.sql")

	checks := []string{
		"embedding vector(1536)",
		"USING ivfflat (embedding vector_cosine_ops)",
		"FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
