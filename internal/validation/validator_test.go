package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
	"github.com/kurihiro0119/repo-access-provisioner/internal/testutil"
)

func TestValidate_Valid(t *testing.T) {
	v := NewValidator(testutil.Tables())

	got, err := v.Validate(testutil.Request("john.doe", "npm", "app1", false))
	require.NoError(t, err)
	require.Equal(t, "ORG-1", got.OrganizationID)
	require.Equal(t, "npm", got.PackageManager.Name)
	require.Equal(t, "john.doe", got.Request.Username)
}

func TestValidate_PackageManagerIgnoresCase(t *testing.T) {
	v := NewValidator(testutil.Tables())

	got, err := v.Validate(testutil.Request("john.doe", "Maven2", "app1", false))
	require.NoError(t, err)
	require.Equal(t, "maven2", got.PackageManager.Name)
}

func TestValidate_SharedWithoutAppID(t *testing.T) {
	v := NewValidator(testutil.Tables())

	_, err := v.Validate(testutil.Request("john.doe", "npm", "", true))
	require.NoError(t, err)
}

func TestValidate_Failures(t *testing.T) {
	v := NewValidator(testutil.Tables())

	tests := []struct {
		name    string
		mutate  func(*domain.ProvisioningRequest)
		message string
	}{
		{
			name:    "unknown organization",
			mutate:  func(r *domain.ProvisioningRequest) { r.OrganizationName = "Unknown" },
			message: `organization not found: "Unknown"`,
		},
		{
			name:    "unsupported package manager",
			mutate:  func(r *domain.ProvisioningRequest) { r.PackageManager = "cargo" },
			message: `unsupported package manager: "cargo" (supported: helm, maven2, npm, pypi)`,
		},
		{
			name:    "missing username",
			mutate:  func(r *domain.ProvisioningRequest) { r.Username = "  " },
			message: "username required",
		},
		{
			name:    "missing app id",
			mutate:  func(r *domain.ProvisioningRequest) { r.AppID = "" },
			message: "app_id required for non-shared repositories",
		},
		{
			name:    "unsupported action",
			mutate:  func(r *domain.ProvisioningRequest) { r.Action = "update" },
			message: `unsupported action: "update"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.Request("john.doe", "npm", "app1", false)
			tt.mutate(&req)

			_, err := v.Validate(req)
			require.Error(t, err)
			require.True(t, apperrors.IsValidation(err))
			require.Equal(t, tt.message, err.Error())
		})
	}
}

func TestValidate_ChecksInOrder(t *testing.T) {
	v := NewValidator(testutil.Tables())

	// every field is wrong; the organization is reported first
	_, err := v.Validate(domain.ProvisioningRequest{OrganizationName: "Nope", PackageManager: "cargo"})
	require.EqualError(t, err, `organization not found: "Nope"`)
}
