package domain

import "time"

// OperationOutcome is the result of one orchestration run
type OperationOutcome struct {
	Success        bool                 `json:"success"`
	Action         Action               `json:"action"`
	RepositoryName string               `json:"repository_name,omitempty"`
	Username       string               `json:"username,omitempty"`
	OrganizationID string               `json:"organization_id,omitempty"`
	PackageManager string               `json:"package_manager,omitempty"`
	Message        string               `json:"message,omitempty"`
	Error          string               `json:"error,omitempty"`
	Request        *ProvisioningRequest `json:"request,omitempty"`
}

// ItemOutcome is an OperationOutcome tagged with its position in the batch
type ItemOutcome struct {
	Index int `json:"index"`
	OperationOutcome
}

// BatchResult aggregates the outcomes of a batch
type BatchResult struct {
	BatchID        string        `json:"batch_id"`
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	ProcessedCount int           `json:"processed_count"`
	TotalRequests  int           `json:"total_requests"`
	Results        []ItemOutcome `json:"results"`
	Errors         []ItemOutcome `json:"errors"`
}

// BatchRecord is a processed batch as kept in the history store
type BatchRecord struct {
	ID             string       `json:"id"`
	Action         Action       `json:"action"`
	Source         string       `json:"source"` // "api" or "cli"
	FailFast       bool         `json:"fail_fast"`
	Success        bool         `json:"success"`
	ProcessedCount int          `json:"processed_count"`
	TotalRequests  int          `json:"total_requests"`
	Result         *BatchResult `json:"result,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewBatchRecord builds the history entry for a finished batch
func NewBatchRecord(result *BatchResult, action Action, source string, failFast bool) *BatchRecord {
	return &BatchRecord{
		ID:             result.BatchID,
		Action:         action,
		Source:         source,
		FailFast:       failFast,
		Success:        result.Success,
		ProcessedCount: result.ProcessedCount,
		TotalRequests:  result.TotalRequests,
		Result:         result,
		CreatedAt:      time.Now().UTC(),
	}
}

// OutcomeRecord is a stored per-item outcome
type OutcomeRecord struct {
	BatchID   string    `json:"batch_id"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
	OperationOutcome
}
