package naming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNames_Dedicated(t *testing.T) {
	names := NewNamer("").Names("npm", false, "app1", "john.doe")

	require.Equal(t, "npm-release-app1", names.Repository)
	require.Equal(t, "npm-release-app1", names.Privilege)
	require.Equal(t, "john.doe", names.Role)
}

func TestNames_Shared(t *testing.T) {
	names := NewNamer("").Names("maven2", true, "ignored", "john.doe")

	require.Equal(t, "maven2-release-shared", names.Repository)
	require.Equal(t, names.Repository, names.Privilege)
	require.Equal(t, DefaultSharedRole, names.Role)
}

func TestNames_CustomSharedRole(t *testing.T) {
	names := NewNamer("team.share").Names("pypi", true, "", "jane")

	require.Equal(t, "team.share", names.Role)
}

func TestNames_LowerCasesRepository(t *testing.T) {
	names := NewNamer("").Names("NPM", false, "App1", "John.Doe")

	require.Equal(t, "npm-release-app1", names.Repository)
	require.Equal(t, "John.Doe", names.Role)
}

func TestNames_Deterministic(t *testing.T) {
	n := NewNamer("")
	first := n.Names("npm", false, "app1", "john.doe")
	for i := 0; i < 5; i++ {
		require.Equal(t, first, n.Names("npm", false, "app1", "john.doe"))
	}
}
