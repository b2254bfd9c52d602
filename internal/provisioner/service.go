package provisioner

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/batch"
	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
	"github.com/kurihiro0119/repo-access-provisioner/internal/naming"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
)

// Batch sources recorded in the history
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// ActionMixed is recorded for batches whose items carry different actions
const ActionMixed domain.Action = "mixed"

// Service is the entry point used by the API and the CLI
type Service interface {
	// Submit checks the envelope, processes the batch and records it.
	// A non-empty action overrides every item's action.
	Submit(ctx context.Context, source string, action domain.Action, req *domain.BatchRequest) (*domain.BatchResult, error)

	// Names returns the remote object names a request maps to
	Names(req domain.ProvisioningRequest) domain.ResourceNames

	// GetBatch returns a recorded batch
	GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error)

	// ListBatches returns the most recent batches
	ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error)

	// RepositoryHistory returns the most recent outcomes for a repository
	RepositoryHistory(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error)
}

// service implements the Service interface
type service struct {
	processor    *batch.Processor
	namer        naming.Namer
	storage      storage.Storage
	maxBatchSize int
	log          logrus.FieldLogger
}

// NewService creates a new service. store may be nil, which disables the
// batch history.
func NewService(processor *batch.Processor, namer naming.Namer, store storage.Storage, maxBatchSize int, log logrus.FieldLogger) Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &service{
		processor:    processor,
		namer:        namer,
		storage:      store,
		maxBatchSize: maxBatchSize,
		log:          log,
	}
}

func (s *service) Submit(ctx context.Context, source string, action domain.Action, req *domain.BatchRequest) (*domain.BatchResult, error) {
	if req == nil {
		return nil, apperrors.NewBadRequestError("request body is required")
	}
	if err := req.Validate(s.maxBatchSize); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	requests := req.Requests
	if action != "" {
		requests = req.WithAction(action)
	} else {
		action = batchAction(requests)
	}

	failFast := req.FailFastOrDefault()
	result := s.processor.Process(ctx, requests, failFast)

	if s.storage != nil {
		record := domain.NewBatchRecord(&result, action, source, failFast)
		// history is best effort
		if err := s.storage.SaveBatch(context.WithoutCancel(ctx), record); err != nil {
			s.log.WithError(err).WithField("batch_id", result.BatchID).Error("Failed to record batch")
		}
	}
	return &result, nil
}

func batchAction(requests []domain.ProvisioningRequest) domain.Action {
	if len(requests) == 0 {
		return ""
	}
	first := requests[0].Action
	for _, r := range requests[1:] {
		if r.Action != first {
			return ActionMixed
		}
	}
	return first
}

func (s *service) Names(req domain.ProvisioningRequest) domain.ResourceNames {
	return s.namer.ForRequest(req)
}

func (s *service) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	if s.storage == nil {
		return nil, apperrors.NewNotFoundError("batch " + batchID)
	}
	record, err := s.storage.GetBatch(ctx, batchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("batch " + batchID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read batch history", err)
	}
	return record, nil
}

func (s *service) ListBatches(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	if s.storage == nil {
		return []*domain.BatchRecord{}, nil
	}
	records, err := s.storage.ListBatches(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read batch history", err)
	}
	return records, nil
}

func (s *service) RepositoryHistory(ctx context.Context, repository string, limit int) ([]*domain.OutcomeRecord, error) {
	if s.storage == nil {
		return []*domain.OutcomeRecord{}, nil
	}
	records, err := s.storage.ListRepositoryOutcomes(ctx, repository, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read batch history", err)
	}
	return records, nil
}
