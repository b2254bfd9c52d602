package domain

// RepositoryViewActions are granted by every privilege this service creates
var RepositoryViewActions = []string{"BROWSE", "READ", "EDIT", "ADD", "DELETE"}

// PrivilegeSpec describes a repository-view privilege to create
type PrivilegeSpec struct {
	Name        string
	Description string
	Repository  string
	Format      string
	Actions     []string
}
