package naming

import (
	"fmt"
	"strings"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

// DefaultSharedRole is the role that carries every shared repository privilege
const DefaultSharedRole = "repositories.share"

// Namer derives the names of the remote objects a request maps to.
// Names depend only on the request fields and the shared role, so re-running
// a request always targets the same objects.
type Namer struct {
	SharedRole string
}

// NewNamer creates a Namer; an empty sharedRole selects DefaultSharedRole.
func NewNamer(sharedRole string) Namer {
	if sharedRole == "" {
		sharedRole = DefaultSharedRole
	}
	return Namer{SharedRole: sharedRole}
}

// Names returns the repository, privilege and role names
func (n Namer) Names(packageManager string, shared bool, appID, username string) domain.ResourceNames {
	suffix := appID
	if shared {
		suffix = "shared"
	}
	repository := strings.ToLower(fmt.Sprintf("%s-release-%s", packageManager, suffix))

	role := username
	if shared {
		role = n.SharedRole
	}

	return domain.ResourceNames{
		Repository: repository,
		Privilege:  repository,
		Role:       role,
	}
}

// ForRequest is Names applied to a request's fields
func (n Namer) ForRequest(req domain.ProvisioningRequest) domain.ResourceNames {
	return n.Names(req.PackageManager, req.Shared, req.AppID, req.Username)
}
