package orchestrator

import (
	"context"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

// RepositoryService manages repositories in the package-repository manager
type RepositoryService interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)

	// CreateProxyRepository creates a proxy of remoteURL using the format's settings
	CreateProxyRepository(ctx context.Context, name, packageManager, remoteURL string, format domain.PackageManager) error

	// DeleteRepository succeeds when the repository is already gone
	DeleteRepository(ctx context.Context, name string) error
}

// AccessControlService manages privileges, roles and user role sets in the
// package-repository manager. Deletes and detaches succeed when the target is
// already absent; attaching an attached privilege is a no-op.
type AccessControlService interface {
	PrivilegeExists(ctx context.Context, name string) (bool, error)
	CreatePrivilege(ctx context.Context, spec domain.PrivilegeSpec) error
	DeletePrivilege(ctx context.Context, name string) error

	RoleExists(ctx context.Context, name string) (bool, error)
	CreateRole(ctx context.Context, name, description string) error
	DeleteRole(ctx context.Context, name string) error
	AttachPrivilegeToRole(ctx context.Context, role, privilege string) error
	DetachPrivilegeFromRole(ctx context.Context, role, privilege string) error
	RolePrivilegeCount(ctx context.Context, role string) (int, error)

	UserExists(ctx context.Context, username string) (bool, error)
	GetUserRoles(ctx context.Context, username string) ([]string, error)
	SetUserRoles(ctx context.Context, username string, roles []string) error
}

// OrgPermissionService grants and revokes the owner membership of a user in
// an organization of the policy server. Both calls are idempotent.
type OrgPermissionService interface {
	GrantOwner(ctx context.Context, orgID, username string) error
	RevokeOwner(ctx context.Context, orgID, username string) error
}
