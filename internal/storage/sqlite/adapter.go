package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		source TEXT NOT NULL,
		fail_fast INTEGER NOT NULL,
		success INTEGER NOT NULL,
		processed_count INTEGER NOT NULL,
		total_requests INTEGER NOT NULL,
		result TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);

	CREATE TABLE IF NOT EXISTS batch_items (
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		success INTEGER NOT NULL,
		action TEXT NOT NULL,
		repository_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		organization_id TEXT NOT NULL DEFAULT '',
		package_manager TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (batch_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_batch_items_repository ON batch_items(repository_name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch stores a batch and its items in one transaction
func (s *sqliteStorage) SaveBatch(ctx context.Context, record *domain.BatchRecord) error {
	if record.Result == nil {
		return fmt.Errorf("batch %s has no result", record.ID)
	}
	data, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to encode batch result: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, action, source, fail_fast, success, processed_count, total_requests, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			success = excluded.success,
			processed_count = excluded.processed_count,
			total_requests = excluded.total_requests,
			result = excluded.result
	`, record.ID, string(record.Action), record.Source, boolToInt(record.FailFast), boolToInt(record.Success),
		record.ProcessedCount, record.TotalRequests, string(data), record.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_items WHERE batch_id = ?`, record.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_items (batch_id, idx, success, action, repository_name, username, organization_id, package_manager, message, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, items := range [][]domain.ItemOutcome{record.Result.Results, record.Result.Errors} {
		for _, item := range items {
			_, err := stmt.ExecContext(ctx, record.ID, item.Index, boolToInt(item.Success), string(item.Action),
				item.RepositoryName, item.Username, item.OrganizationID, item.PackageManager,
				item.Message, item.Error, record.CreatedAt)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetBatch retrieves a batch by ID
func (s *sqliteStorage) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	var (
		record            domain.BatchRecord
		action, data      string
		failFast, success int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action, source, fail_fast, success, processed_count, total_requests, result, created_at
		FROM batches
		WHERE id = ?
	`, batchID).Scan(&record.ID, &action, &record.Source, &failFast, &success,
		&record.ProcessedCount, &record.TotalRequests, &data, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.Action = domain.Action(action)
	record.FailFast = failFast != 0
	record.Success = success != 0

	var result domain.BatchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	record.Result = &result
	return &record, nil
}

// ListBatches returns the most recent batches
func (s *sqliteStorage) ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, source, fail_fast, success, processed_count, total_requests, created_at
		FROM batches
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.BatchRecord{}
	for rows.Next() {
		var (
			record            domain.BatchRecord
			action            string
			failFast, success int
		)
		if err := rows.Scan(&record.ID, &action, &record.Source, &failFast, &success,
			&record.ProcessedCount, &record.TotalRequests, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.Action = domain.Action(action)
		record.FailFast = failFast != 0
		record.Success = success != 0
		records = append(records, &record)
	}
	return records, rows.Err()
}

// ListRepositoryOutcomes returns the most recent outcomes touching a repository
func (s *sqliteStorage) ListRepositoryOutcomes(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, idx, success, action, repository_name, username, organization_id, package_manager, message, error, created_at
		FROM batch_items
		WHERE repository_name = ?
		ORDER BY created_at DESC, batch_id, idx
		LIMIT ?
	`, repository, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.OutcomeRecord{}
	for rows.Next() {
		var (
			r       domain.OutcomeRecord
			success int
			action  string
		)
		if err := rows.Scan(&r.BatchID, &r.Index, &success, &action, &r.RepositoryName, &r.Username,
			&r.OrganizationID, &r.PackageManager, &r.Message, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.Action = domain.Action(action)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
