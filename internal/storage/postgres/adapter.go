package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id VARCHAR(64) PRIMARY KEY,
		action VARCHAR(16) NOT NULL,
		source VARCHAR(16) NOT NULL,
		fail_fast BOOLEAN NOT NULL,
		success BOOLEAN NOT NULL,
		processed_count INTEGER NOT NULL,
		total_requests INTEGER NOT NULL,
		result JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);

	CREATE TABLE IF NOT EXISTS batch_items (
		batch_id VARCHAR(64) NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		success BOOLEAN NOT NULL,
		action VARCHAR(16) NOT NULL,
		repository_name VARCHAR(255) NOT NULL DEFAULT '',
		username VARCHAR(255) NOT NULL DEFAULT '',
		organization_id VARCHAR(255) NOT NULL DEFAULT '',
		package_manager VARCHAR(64) NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (batch_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_batch_items_repository ON batch_items(repository_name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch stores a batch and its items in one transaction
func (s *postgresStorage) SaveBatch(ctx context.Context, record *domain.BatchRecord) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			processed_count = EXCLUDED.processed_count,
			total_requests = EXCLUDED.total_requests,
			result = EXCLUDED.result
	`, record.ID, string(record.Action), record.Source, record.FailFast, record.Success,
		record.ProcessedCount, record.TotalRequests, data, record.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_items WHERE batch_id = $1`, record.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_items (batch_id, idx, success, action, repository_name, username, organization_id, package_manager, message, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, items := range [][]domain.ItemOutcome{record.Result.Results, record.Result.Errors} {
		for _, item := range items {
			_, err := stmt.ExecContext(ctx, record.ID, item.Index, item.Success, string(item.Action),
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
func (s *postgresStorage) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	var (
		record domain.BatchRecord
		action string
		data   []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action, source, fail_fast, success, processed_count, total_requests, result, created_at
		FROM batches
		WHERE id = $1
	`, batchID).Scan(&record.ID, &action, &record.Source, &record.FailFast, &record.Success,
		&record.ProcessedCount, &record.TotalRequests, &data, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record.Action = domain.Action(action)

	var result domain.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	record.Result = &result
	return &record, nil
}

// ListBatches returns the most recent batches
func (s *postgresStorage) ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, source, fail_fast, success, processed_count, total_requests, created_at
		FROM batches
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.BatchRecord{}
	for rows.Next() {
		var (
			record domain.BatchRecord
			action string
		)
		if err := rows.Scan(&record.ID, &action, &record.Source, &record.FailFast, &record.Success,
			&record.ProcessedCount, &record.TotalRequests, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.Action = domain.Action(action)
		records = append(records, &record)
	}
	return records, rows.Err()
}

// ListRepositoryOutcomes returns the most recent outcomes touching a repository
func (s *postgresStorage) ListRepositoryOutcomes(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, idx, success, action, repository_name, username, organization_id, package_manager, message, error, created_at
		FROM batch_items
		WHERE repository_name = $1
		ORDER BY created_at DESC, batch_id, idx
		LIMIT $2
	`, repository, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.OutcomeRecord{}
	for rows.Next() {
		var (
			r      domain.OutcomeRecord
			action string
		)
		if err := rows.Scan(&r.BatchID, &r.Index, &r.Success, &action, &r.RepositoryName, &r.Username,
			&r.OrganizationID, &r.PackageManager, &r.Message, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Action = domain.Action(action)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
