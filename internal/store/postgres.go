package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azadk/ocrhub/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PostgresConfig configures a new PostgresStore.
type PostgresConfig struct {
	URL    string
	Logger *slog.Logger
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "store"),
	}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *PostgresStore) QueuedJobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 AND NOT deleted ORDER BY queued_at`,
		model.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserIDByPhone resolves a user by canonical phone number. Stored
// numbers are normalized before comparison since users enter them in
// local formats.
func (s *PostgresStore) UserIDByPhone(ctx context.Context, phone string) (int, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, phone_no FROM users WHERE phone_no <> ''`)
	if err != nil {
		return 0, false, fmt.Errorf("list user phones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, false, err
		}
		if model.NormalizePhone(stored) == phone {
			return id, true, nil
		}
	}
	return 0, false, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *pgTx) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	err := t.tx.QueryRow(ctx, `
		SELECT id, code, name, user_id, page_count, paid_page_count, status,
		       lang, callback, from_api, queued_at, processed_at, finished_at,
		       failing_reason, user_failing_reason, deleted, created_at, created_by
		FROM jobs WHERE id = $1`, jobID).Scan(
		&j.ID, &j.Code, &j.Name, &j.UserID, &j.PageCount, &j.PaidPageCount,
		&j.Status, &j.Lang, &j.Callback, &j.FromAPI, &j.QueuedAt,
		&j.ProcessedAt, &j.FinishedAt, &j.FailingReason, &j.UserFailingReason,
		&j.Deleted, &j.CreatedAt, &j.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &j, nil
}

func (t *pgTx) GetUser(ctx context.Context, userID int) (*model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.phone_no,
		       COALESCE((SELECT SUM(page_count) FROM user_transactions
		                 WHERE user_id = u.id AND confirmed), 0)
		FROM users u WHERE u.id = $1`, userID).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}

func (t *pgTx) UpdateJob(ctx context.Context, job *model.Job) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE jobs SET
			code = $2, name = $3, user_id = $4, page_count = $5,
			paid_page_count = $6, status = $7, lang = $8, callback = $9,
			from_api = $10, queued_at = $11, processed_at = $12,
			finished_at = $13, failing_reason = $14, user_failing_reason = $15,
			deleted = $16
		WHERE id = $1`,
		job.ID, job.Code, job.Name, job.UserID, job.PageCount,
		job.PaidPageCount, job.Status, job.Lang, job.Callback, job.FromAPI,
		job.QueuedAt, job.ProcessedAt, job.FinishedAt, job.FailingReason,
		job.UserFailingReason, job.Deleted)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeletePreviousPages(ctx context.Context, jobID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM pages WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete pages of job %s: %w", jobID, err)
	}
	return nil
}

func (t *pgTx) InsertPage(ctx context.Context, page *model.Page) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pages (
			id, name, job_id, user_id, full_path, text, hocr, pdf,
			succeeded, processed, is_free, predict_sizes,
			started_at, finished_at, deleted, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		page.ID, page.Name, page.JobID, page.UserID, page.FullPath,
		page.Text, page.Hocr, page.PDF, page.Succeeded, page.Processed,
		page.IsFree, page.PredictSizes, page.StartedAt, page.FinishedAt,
		page.Deleted, page.CreatedAt, page.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert page %s: %w", page.ID, err)
	}
	return nil
}

func (t *pgTx) InsertUserTransaction(ctx context.Context, ut *model.UserTransaction) error {
	if ut.TransactionID != "" {
		var exists bool
		err := t.tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM user_transactions
				WHERE transaction_id = $1 AND payment_medium_id = $2
				  AND type_id = $3 AND confirmed)`,
			ut.TransactionID, ut.PaymentMediumID, ut.TypeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check transaction %s: %w", ut.TransactionID, err)
		}
		if exists {
			return fmt.Errorf("transaction %s medium %d: %w",
				ut.TransactionID, ut.PaymentMediumID, ErrDuplicateTransaction)
		}
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO user_transactions (
			user_id, page_count, amount, payment_medium_id, type_id,
			confirmed, transaction_id, admin_note, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		ut.UserID, ut.PageCount, ut.Amount, ut.PaymentMediumID, ut.TypeID,
		ut.Confirmed, ut.TransactionID, ut.AdminNote, ut.CreatedAt,
		ut.CreatedBy).Scan(&ut.ID)
	if err != nil {
		return fmt.Errorf("insert ledger entry for user %d: %w", ut.UserID, err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
