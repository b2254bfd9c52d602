package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchRequest_FailFastDefaultsToTrue(t *testing.T) {
	var req BatchRequest
	require.NoError(t, json.Unmarshal([]byte(`{"requests":[]}`), &req))
	require.True(t, req.FailFastOrDefault())

	require.NoError(t, json.Unmarshal([]byte(`{"requests":[],"fail_fast":false}`), &req))
	require.False(t, req.FailFastOrDefault())
}

func TestBatchRequest_Validate(t *testing.T) {
	item := ProvisioningRequest{OrganizationName: "Logistics", Username: "john.doe", PackageManager: "npm", AppID: "app1"}

	ok := &BatchRequest{Requests: []ProvisioningRequest{item}}
	require.NoError(t, ok.Validate(1))
	require.NoError(t, ok.Validate(0))

	require.Error(t, (&BatchRequest{}).Validate(10))
	require.Error(t, (&BatchRequest{Requests: []ProvisioningRequest{}}).Validate(10))

	tooMany := &BatchRequest{Requests: []ProvisioningRequest{item, item}}
	require.EqualError(t, tooMany.Validate(1), "invalid batch request: 2 requests exceeds the limit of 1")

	long := item
	long.PackageManager = strings.Repeat("n", 21)
	require.Error(t, (&BatchRequest{Requests: []ProvisioningRequest{long}}).Validate(10))

	// business rules are not checked here
	empty := ProvisioningRequest{}
	require.NoError(t, (&BatchRequest{Requests: []ProvisioningRequest{empty}}).Validate(10))
}

func TestBatchRequest_WithAction(t *testing.T) {
	req := &BatchRequest{Requests: []ProvisioningRequest{{Username: "a", Action: ActionCreate}, {Username: "b"}}}

	out := req.WithAction(ActionDelete)
	require.Equal(t, ActionDelete, out[0].Action)
	require.Equal(t, ActionDelete, out[1].Action)
	require.Equal(t, ActionCreate, req.Requests[0].Action)
}

func TestPackageManager_PrivilegeFormat(t *testing.T) {
	require.Equal(t, "npm", PackageManager{Name: "npm"}.PrivilegeFormatOrDefault())
	require.Equal(t, "maven2", PackageManager{Name: "maven", PrivilegeFormat: "maven2"}.PrivilegeFormatOrDefault())
}
