// Package store persists jobs, pages and the billing ledger.
package store

import (
	"context"
	"errors"

	"github.com/azadk/ocrhub/internal/model"
)

// ErrNotFound is returned when a job or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateTransaction is returned when a recharge carries an
// external transaction id that already has a confirmed ledger entry
// with the same payment medium and type.
var ErrDuplicateTransaction = errors.New("duplicate transaction")

// Store opens transactions against job storage and answers the
// dispatcher's recovery poll.
type Store interface {
	// Begin opens a transaction. Every job run happens inside exactly
	// one transaction; an unhandled failure rolls the whole run back.
	Begin(ctx context.Context) (Tx, error)

	// QueuedJobIDs lists jobs waiting to be processed, oldest first.
	QueuedJobIDs(ctx context.Context) ([]string, error)
}

// Tx is one storage transaction.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// GetJob loads a job by id. Returns ErrNotFound if missing.
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// GetUser loads a user with the derived ledger balance (sum of
	// page_count over confirmed entries). Returns ErrNotFound if missing.
	GetUser(ctx context.Context, userID int) (*model.User, error)

	UpdateJob(ctx context.Context, job *model.Job) error

	// DeletePreviousPages removes pages from an earlier run of the job.
	DeletePreviousPages(ctx context.Context, jobID string) error

	InsertPage(ctx context.Context, page *model.Page) error

	// InsertUserTransaction appends a ledger entry. Entries are never
	// mutated in place. Returns ErrDuplicateTransaction when a confirmed
	// entry with the same external transaction id, payment medium and
	// type already exists.
	InsertUserTransaction(ctx context.Context, t *model.UserTransaction) error
}
