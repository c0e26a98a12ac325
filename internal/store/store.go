// Package store is the Submission Store: the durable record of every
// submission and its lifecycle state, backed by Postgres via
// database/sql and lib/pq, using parameterized queries, client-generated
// UUID ids, and conditional UPDATE statements to enforce transitions.
package store

import (
	"context"
	"errors"

	"github.com/klpod221/kode-judge/internal/domain"
)

// Sentinel errors distinguished at the HTTP boundary.
var (
	ErrNotFound          = errors.New("store: submission not found")
	ErrIllegalTransition = errors.New("store: illegal status transition")
)

// Update carries the terminal fields a worker commits in UpdateResult.
type Update struct {
	Status        domain.Status
	Stdout        []byte
	Stderr        []byte
	CompileOutput []byte
	Meta          *domain.Meta
}

// Store is the Submission Store contract.
type Store interface {
	// Create allocates an id, writes the record with status PENDING,
	// and returns the id. The caller enqueues immediately after; a
	// process crash between the two leaves the row stuck PENDING.
	Create(ctx context.Context, sub domain.Submission) (string, error)

	Get(ctx context.Context, id string) (domain.Submission, error)

	// GetMany returns only existing submissions, preserving the order
	// of ids, dropping missing entries, collapsing duplicates.
	GetMany(ctx context.Context, ids []string) ([]domain.Submission, error)

	List(ctx context.Context, page, pageSize int) (domain.Page, error)

	// MarkProcessing transitions a PENDING submission to PROCESSING.
	// Returns ErrIllegalTransition if the row is not currently PENDING
	// (including if it was deleted out from under the worker).
	MarkProcessing(ctx context.Context, id string) error

	// UpdateResult writes terminal fields, enforcing monotonic status:
	// only a row still in PROCESSING may be completed. If the row was
	// deleted mid-flight, this is reported to the caller as
	// ErrIllegalTransition so the worker can discard the result
	// without logging it as an error.
	UpdateResult(ctx context.Context, id string, upd Update) error

	// Delete marks a submission deleted. Best-effort: if currently
	// PROCESSING, the row is flagged so the worker's later commit is
	// discarded; Get/List never return a deleted submission again.
	Delete(ctx context.Context, id string) error

	Close() error
}
