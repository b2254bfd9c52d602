package provisioner

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/repo-access-provisioner/internal/batch"
	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
	"github.com/kurihiro0119/repo-access-provisioner/internal/naming"
	"github.com/kurihiro0119/repo-access-provisioner/internal/orchestrator"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage/sqlite"
	"github.com/kurihiro0119/repo-access-provisioner/internal/testutil"
	"github.com/kurihiro0119/repo-access-provisioner/internal/validation"
)

func newService(t *testing.T, fake *testutil.FakeRemote, store storage.Storage) Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	namer := naming.NewNamer("")
	orch := orchestrator.New(fake, fake, fake, orchestrator.Options{Namer: namer, Logger: log})
	processor := batch.NewProcessor(validation.NewValidator(testutil.Tables()), orch, log)
	return NewService(processor, namer, store, 3, log)
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSubmit_RecordsBatch(t *testing.T) {
	fake := testutil.NewFakeRemote("john.doe")
	store := newStore(t)
	svc := newService(t, fake, store)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SourceAPI, domain.ActionCreate, &domain.BatchRequest{
		Requests: []domain.ProvisioningRequest{testutil.Request("john.doe", "npm", "app1", false)},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	record, err := svc.GetBatch(ctx, result.BatchID)
	require.NoError(t, err)
	require.Equal(t, domain.ActionCreate, record.Action)
	require.Equal(t, SourceAPI, record.Source)
	require.True(t, record.FailFast)

	history, err := svc.RepositoryHistory(ctx, "npm-release-app1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, result.BatchID, history[0].BatchID)

	batches, err := svc.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
}

func TestSubmit_ActionOverridesItems(t *testing.T) {
	fake := testutil.NewFakeRemote("john.doe")
	svc := newService(t, fake, nil)
	ctx := context.Background()
	req := &domain.BatchRequest{
		Requests: []domain.ProvisioningRequest{testutil.Request("john.doe", "npm", "app1", false)},
	}

	_, err := svc.Submit(ctx, SourceAPI, domain.ActionCreate, req)
	require.NoError(t, err)
	require.Contains(t, fake.Repositories, "npm-release-app1")

	// the item still says create; the route decides
	result, err := svc.Submit(ctx, SourceAPI, domain.ActionDelete, req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, domain.ActionDelete, result.Results[0].Action)
	require.NotContains(t, fake.Repositories, "npm-release-app1")
}

func TestSubmit_MixedActions(t *testing.T) {
	fake := testutil.NewFakeRemote("john.doe")
	store := newStore(t)
	svc := newService(t, fake, store)
	ctx := context.Background()

	create := testutil.Request("john.doe", "npm", "app1", false)
	remove := testutil.Request("john.doe", "npm", "app2", false)
	remove.Action = domain.ActionDelete

	result, err := svc.Submit(ctx, SourceCLI, "", &domain.BatchRequest{
		Requests: []domain.ProvisioningRequest{create, remove},
	})
	require.NoError(t, err)

	record, err := svc.GetBatch(ctx, result.BatchID)
	require.NoError(t, err)
	require.Equal(t, ActionMixed, record.Action)
	require.Equal(t, SourceCLI, record.Source)
}

func TestSubmit_RejectsBadEnvelope(t *testing.T) {
	fake := testutil.NewFakeRemote("john.doe")
	svc := newService(t, fake, nil)

	tests := []struct {
		name string
		req  *domain.BatchRequest
	}{
		{"nil", nil},
		{"empty", &domain.BatchRequest{Requests: []domain.ProvisioningRequest{}}},
		{"too many", &domain.BatchRequest{Requests: []domain.ProvisioningRequest{
			testutil.Request("john.doe", "npm", "a", false),
			testutil.Request("john.doe", "npm", "b", false),
			testutil.Request("john.doe", "npm", "c", false),
			testutil.Request("john.doe", "npm", "d", false),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), SourceAPI, domain.ActionCreate, tt.req)
			require.Error(t, err)
			require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))
		})
	}
	require.Empty(t, fake.Calls)
}

// brokenStore fails every write
type brokenStore struct {
	storage.Storage
}

func (brokenStore) SaveBatch(ctx context.Context, record *domain.BatchRecord) error {
	return errors.New("disk full")
}

func TestSubmit_HistoryFailureDoesNotFailBatch(t *testing.T) {
	fake := testutil.NewFakeRemote("john.doe")
	svc := newService(t, fake, brokenStore{})

	result, err := svc.Submit(context.Background(), SourceAPI, domain.ActionCreate, &domain.BatchRequest{
		Requests: []domain.ProvisioningRequest{testutil.Request("john.doe", "npm", "app1", false)},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestGetBatch_NotFound(t *testing.T) {
	svc := newService(t, testutil.NewFakeRemote(), newStore(t))

	_, err := svc.GetBatch(context.Background(), "missing")
	require.True(t, apperrors.IsNotFound(err))

	withoutHistory := newService(t, testutil.NewFakeRemote(), nil)
	_, err = withoutHistory.GetBatch(context.Background(), "missing")
	require.True(t, apperrors.IsNotFound(err))

	batches, err := withoutHistory.ListBatches(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, batches)
}

func TestNames(t *testing.T) {
	svc := newService(t, testutil.NewFakeRemote(), nil)

	names := svc.Names(domain.ProvisioningRequest{PackageManager: "npm", AppID: "app1", Username: "john.doe"})
	require.Equal(t, "npm-release-app1", names.Repository)
	require.Equal(t, "john.doe", names.Role)
}
