package storage

import (
	"context"
	"errors"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

// ErrNotFound is returned when a batch does not exist
var ErrNotFound = errors.New("not found")

// Storage is the abstract interface for the batch history store
type Storage interface {
	// SaveBatch stores a processed batch and its per-item outcomes
	SaveBatch(ctx context.Context, record *domain.BatchRecord) error

	// GetBatch returns a batch with its full result, or ErrNotFound
	GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error)

	// ListBatches returns the most recent batches first, without results
	ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error)

	// ListRepositoryOutcomes returns the most recent outcomes for a repository
	ListRepositoryOutcomes(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
