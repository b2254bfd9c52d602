package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Action is the direction of a provisioning run
type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the supported actions
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionDelete
}

// ProvisioningRequest is one unit of work in a batch.
//
// Length limits are enforced on the whole envelope before any item is
// processed; the business rules (organization lookup, required username,
// app_id for non-shared repositories) are per-item and live in the
// validation package.
type ProvisioningRequest struct {
	OrganizationName string `json:"organization_name" validate:"max=100"`
	Username         string `json:"username" validate:"max=50"`
	PackageManager   string `json:"package_manager" validate:"max=20"`
	Shared           bool   `json:"shared"`
	AppID            string `json:"app_id,omitempty" validate:"max=50"`
	Action           Action `json:"action,omitempty"`
}

// BatchRequest is the payload accepted by the API and the CLI batch file.
type BatchRequest struct {
	Requests []ProvisioningRequest `json:"requests" validate:"required,min=1,dive"`
	FailFast *bool                 `json:"fail_fast,omitempty"`
}

// FailFastOrDefault returns the fail_fast flag; an omitted flag means true.
func (b *BatchRequest) FailFastOrDefault() bool {
	if b.FailFast == nil {
		return true
	}
	return *b.FailFast
}

// WithAction returns a copy of the requests with every action set to action.
func (b *BatchRequest) WithAction(action Action) []ProvisioningRequest {
	out := make([]ProvisioningRequest, len(b.Requests))
	for i, req := range b.Requests {
		req.Action = action
		out[i] = req
	}
	return out
}

var envelopeValidator = validator.New()

// Validate checks the envelope shape: at least one and at most maxRequests
// items, and no over-long fields.
func (b *BatchRequest) Validate(maxRequests int) error {
	if err := envelopeValidator.Struct(b); err != nil {
		return fmt.Errorf("invalid batch request: %w", err)
	}
	if maxRequests > 0 && len(b.Requests) > maxRequests {
		return fmt.Errorf("invalid batch request: %d requests exceeds the limit of %d", len(b.Requests), maxRequests)
	}
	return nil
}

// ValidatedRequest is a request that passed every validation rule, together
// with the lookups resolved while validating it.
type ValidatedRequest struct {
	Request        ProvisioningRequest
	OrganizationID string
	PackageManager PackageManager
}

// ResourceNames are the remote object names derived from a request
type ResourceNames struct {
	Repository string `json:"repository"`
	Privilege  string `json:"privilege"`
	Role       string `json:"role"`
}
