package batch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
)

// RequestValidator resolves a raw request against the lookup tables
type RequestValidator interface {
	Validate(req domain.ProvisioningRequest) (domain.ValidatedRequest, error)
}

// Runner executes the workflow for one validated request
type Runner interface {
	Run(ctx context.Context, req domain.ValidatedRequest) (domain.OperationOutcome, error)
}

// Processor runs a batch of requests one after another in input order.
type Processor struct {
	validator RequestValidator
	runner    Runner
	log       logrus.FieldLogger
	newID     func() string
}

// NewProcessor creates a batch processor
func NewProcessor(validator RequestValidator, runner Runner, log logrus.FieldLogger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		validator: validator,
		runner:    runner,
		log:       log,
		newID:     newBatchID,
	}
}

func newBatchID() string {
	return uuid.New().String()[:8]
}

// Process runs every request and aggregates the outcomes.
//
// With failFast the first failing item ends the batch and later items are
// neither attempted nor reported. A cancelled context ends the batch the same
// way before the next item starts.
func (p *Processor) Process(ctx context.Context, requests []domain.ProvisioningRequest, failFast bool) domain.BatchResult {
	result := domain.BatchResult{
		BatchID:       p.newID(),
		TotalRequests: len(requests),
		Results:       []domain.ItemOutcome{},
		Errors:        []domain.ItemOutcome{},
	}
	log := p.log.WithField("batch_id", result.BatchID)
	log.Infof("Processing batch of %d requests (fail_fast=%t)", len(requests), failFast)

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warnf("Batch cancelled before request %d", i)
			break
		}

		itemLog := log.WithField("index", i)
		result.ProcessedCount++

		outcome, err := p.processItem(ctx, req, itemLog)
		item := domain.ItemOutcome{Index: i, OperationOutcome: outcome}
		if err == nil {
			result.Results = append(result.Results, item)
			itemLog.Info("Request succeeded")
			continue
		}

		result.Errors = append(result.Errors, item)
		itemLog.WithError(err).Warn("Request failed")
		if failFast {
			log.Infof("Stopping batch after failed request %d (fail_fast)", i)
			break
		}
	}

	result.Success = len(result.Errors) == 0
	result.Message = fmt.Sprintf("%d/%d requests succeeded", len(result.Results), result.TotalRequests)
	log.WithFields(logrus.Fields{
		"processed": result.ProcessedCount,
		"succeeded": len(result.Results),
		"failed":    len(result.Errors),
	}).Info("Batch finished")
	return result
}

// processItem validates and runs one request. A panic is turned into that
// item's failure.
func (p *Processor) processItem(ctx context.Context, req domain.ProvisioningRequest, log logrus.FieldLogger) (outcome domain.OperationOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Recovered from panic: %v", r)
			err = apperrors.NewUnexpectedError("unexpected error", fmt.Errorf("%v", r))
			outcome = failedOutcome(req, err)
		}
	}()

	validated, err := p.validator.Validate(req)
	if err != nil {
		return failedOutcome(req, err), err
	}
	return p.runner.Run(ctx, validated)
}

func failedOutcome(req domain.ProvisioningRequest, err error) domain.OperationOutcome {
	return domain.OperationOutcome{
		Success:        false,
		Action:         req.Action,
		Username:       req.Username,
		PackageManager: req.PackageManager,
		Error:          err.Error(),
		Request:        &req,
	}
}
