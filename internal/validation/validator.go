package validation

import (
	"fmt"
	"strings"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
)

// Validator checks a single request against the lookup tables before any
// remote system is touched.
type Validator struct {
	tables domain.Tables
}

// NewValidator creates a validator over the given tables
func NewValidator(tables domain.Tables) *Validator {
	return &Validator{tables: tables}
}

// Validate runs the checks in order and stops at the first failure.
// Failures are *apperrors.AppError with code ErrCodeValidation.
func (v *Validator) Validate(req domain.ProvisioningRequest) (domain.ValidatedRequest, error) {
	orgID, ok := v.tables.OrganizationID(req.OrganizationName)
	if !ok {
		return domain.ValidatedRequest{}, apperrors.NewValidationError(
			fmt.Sprintf("organization not found: %q", req.OrganizationName))
	}

	pm, ok := v.tables.PackageManager(req.PackageManager)
	if !ok {
		return domain.ValidatedRequest{}, apperrors.NewValidationError(
			fmt.Sprintf("unsupported package manager: %q (supported: %s)",
				req.PackageManager, strings.Join(v.tables.SupportedPackageManagers(), ", ")))
	}

	if strings.TrimSpace(req.Username) == "" {
		return domain.ValidatedRequest{}, apperrors.NewValidationError("username required")
	}

	if !req.Shared && strings.TrimSpace(req.AppID) == "" {
		return domain.ValidatedRequest{}, apperrors.NewValidationError("app_id required for non-shared repositories")
	}

	if !req.Action.Valid() {
		return domain.ValidatedRequest{}, apperrors.NewValidationError(
			fmt.Sprintf("unsupported action: %q", req.Action))
	}

	return domain.ValidatedRequest{
		Request:        req,
		OrganizationID: orgID,
		PackageManager: pm,
	}, nil
}
