package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

// TestPostgresDeleteUnknownIDReturnsNotFound is an integration test: it
// needs a live Postgres reachable at KODE_JUDGE_TEST_DATABASE_URL and is
// skipped otherwise. Delete on an id that was never inserted (or was
// already deleted) must report ErrNotFound, not ErrIllegalTransition —
// there is no PROCESSING/PENDING transition to violate here, the row
// simply isn't there.
func TestPostgresDeleteUnknownIDReturnsNotFound(t *testing.T) {
	dsn := os.Getenv("KODE_JUDGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KODE_JUDGE_TEST_DATABASE_URL not set, skipping postgres integration test")
	}

	pg, err := Open(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer pg.Close()

	ctx := context.Background()
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	err = pg.Delete(ctx, uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}
