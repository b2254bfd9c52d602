package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func outcome(index int, success bool, repo string) domain.ItemOutcome {
	o := domain.ItemOutcome{
		Index: index,
		OperationOutcome: domain.OperationOutcome{
			Success:        success,
			Action:         domain.ActionCreate,
			RepositoryName: repo,
			Username:       "john.doe",
			OrganizationID: "ORG-1",
			PackageManager: "npm",
		},
	}
	if success {
		o.Message = "Successfully provisioned repository and privileges"
	} else {
		o.Error = "ensure-repository: boom"
	}
	return o
}

func record(id string, createdAt time.Time, results, errs []domain.ItemOutcome) *domain.BatchRecord {
	result := &domain.BatchResult{
		BatchID:        id,
		Success:        len(errs) == 0,
		ProcessedCount: len(results) + len(errs),
		TotalRequests:  len(results) + len(errs),
		Results:        results,
		Errors:         errs,
	}
	rec := domain.NewBatchRecord(result, domain.ActionCreate, "api", true)
	rec.CreatedAt = createdAt
	return rec
}

func TestSaveAndGetBatch(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	rec := record("abc12345", time.Now().UTC(),
		[]domain.ItemOutcome{outcome(0, true, "npm-release-app1")},
		[]domain.ItemOutcome{outcome(1, false, "npm-release-app2")})
	require.NoError(t, s.SaveBatch(ctx, rec))

	got, err := s.GetBatch(ctx, "abc12345")
	require.NoError(t, err)
	require.Equal(t, "abc12345", got.ID)
	require.Equal(t, domain.ActionCreate, got.Action)
	require.Equal(t, "api", got.Source)
	require.True(t, got.FailFast)
	require.False(t, got.Success)
	require.Equal(t, 2, got.ProcessedCount)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Results, 1)
	require.Len(t, got.Result.Errors, 1)
	require.Equal(t, "ensure-repository: boom", got.Result.Errors[0].Error)
}

func TestGetBatch_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetBatch(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveBatch_RequiresResult(t *testing.T) {
	s := newTestStorage(t)

	err := s.SaveBatch(context.Background(), &domain.BatchRecord{ID: "x"})
	require.EqualError(t, err, "batch x has no result")
}

func TestSaveBatch_Upsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveBatch(ctx, record("b1", now, nil, []domain.ItemOutcome{outcome(0, false, "npm-release-app1")})))
	require.NoError(t, s.SaveBatch(ctx, record("b1", now, []domain.ItemOutcome{outcome(0, true, "npm-release-app1")}, nil)))

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.True(t, got.Success)

	history, err := s.ListRepositoryOutcomes(ctx, "npm-release-app1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Success)
}

func TestListBatches_NewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		rec := record(id, base.Add(time.Duration(i)*time.Minute), []domain.ItemOutcome{outcome(0, true, "npm-release-"+id)}, nil)
		require.NoError(t, s.SaveBatch(ctx, rec))
	}

	batches, err := s.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, "new", batches[0].ID)
	require.Equal(t, "mid", batches[1].ID)
	require.Nil(t, batches[0].Result)
}

func TestListRepositoryOutcomes(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.SaveBatch(ctx, record("b1", base,
		[]domain.ItemOutcome{outcome(0, true, "npm-release-app1"), outcome(1, true, "npm-release-app2")}, nil)))
	require.NoError(t, s.SaveBatch(ctx, record("b2", base.Add(time.Hour), nil,
		[]domain.ItemOutcome{outcome(0, false, "npm-release-app1")})))

	history, err := s.ListRepositoryOutcomes(ctx, "npm-release-app1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "b2", history[0].BatchID)
	require.False(t, history[0].Success)
	require.Equal(t, "ensure-repository: boom", history[0].Error)
	require.Equal(t, "b1", history[1].BatchID)
	require.Equal(t, "ORG-1", history[1].OrganizationID)

	none, err := s.ListRepositoryOutcomes(ctx, "unknown", 10)
	require.NoError(t, err)
	require.Empty(t, none)
	require.NotNil(t, none)
}
