package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
)

// FakeRemote is an in-memory repository manager and policy server. It
// implements the repository, access-control and organization permission
// services and records every call.
type FakeRemote struct {
	mu sync.Mutex

	Repositories map[string]string              // name -> remote URL
	Privileges   map[string]domain.PrivilegeSpec // name -> spec
	Roles        map[string][]string             // role -> privileges
	Users        map[string][]string             // username -> roles
	Owners       map[string]map[string]bool      // org id -> username -> owner

	Calls []string

	// FailOn makes the named method return an error
	FailOn map[string]error
	// PanicOn makes the named method panic
	PanicOn map[string]bool
}

// NewFakeRemote creates an empty fake with the given users
func NewFakeRemote(users ...string) *FakeRemote {
	f := &FakeRemote{
		Repositories: map[string]string{},
		Privileges:   map[string]domain.PrivilegeSpec{},
		Roles:        map[string][]string{},
		Users:        map[string][]string{},
		Owners:       map[string]map[string]bool{},
		FailOn:       map[string]error{},
		PanicOn:      map[string]bool{},
	}
	for _, u := range users {
		f.Users[u] = []string{}
	}
	return f
}

func (f *FakeRemote) call(method string, args ...any) error {
	f.Calls = append(f.Calls, fmt.Sprintf("%s%v", method, args))
	if f.PanicOn[method] {
		panic(method + " exploded")
	}
	return f.FailOn[method]
}

// CallCount returns how many times method was called
func (f *FakeRemote) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prefix := method + "["
	for _, c := range f.Calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// Mutations counts calls that change remote state
func (f *FakeRemote) Mutations() int {
	total := 0
	for _, m := range []string{
		"CreateProxyRepository", "DeleteRepository", "CreatePrivilege", "DeletePrivilege",
		"CreateRole", "DeleteRole", "SetUserRoles", "GrantOwner", "RevokeOwner",
	} {
		total += f.CallCount(m)
	}
	return total
}

// IsOwner reports whether username holds the owner role in orgID
func (f *FakeRemote) IsOwner(orgID, username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Owners[orgID][username]
}

func (f *FakeRemote) RepositoryExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RepositoryExists", name); err != nil {
		return false, err
	}
	_, ok := f.Repositories[name]
	return ok, nil
}

func (f *FakeRemote) CreateProxyRepository(ctx context.Context, name, packageManager, remoteURL string, format domain.PackageManager) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateProxyRepository", name, packageManager); err != nil {
		return err
	}
	if _, ok := f.Repositories[name]; ok {
		return fmt.Errorf("repository %s already exists", name)
	}
	f.Repositories[name] = remoteURL
	return nil
}

func (f *FakeRemote) DeleteRepository(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteRepository", name); err != nil {
		return err
	}
	delete(f.Repositories, name)
	return nil
}

func (f *FakeRemote) PrivilegeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("PrivilegeExists", name); err != nil {
		return false, err
	}
	_, ok := f.Privileges[name]
	return ok, nil
}

func (f *FakeRemote) CreatePrivilege(ctx context.Context, spec domain.PrivilegeSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreatePrivilege", spec.Name); err != nil {
		return err
	}
	if _, ok := f.Privileges[spec.Name]; ok {
		return fmt.Errorf("privilege %s already exists", spec.Name)
	}
	f.Privileges[spec.Name] = spec
	return nil
}

func (f *FakeRemote) DeletePrivilege(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeletePrivilege", name); err != nil {
		return err
	}
	delete(f.Privileges, name)
	return nil
}

func (f *FakeRemote) RoleExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RoleExists", name); err != nil {
		return false, err
	}
	_, ok := f.Roles[name]
	return ok, nil
}

func (f *FakeRemote) CreateRole(ctx context.Context, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateRole", name); err != nil {
		return err
	}
	if _, ok := f.Roles[name]; ok {
		return fmt.Errorf("role %s already exists", name)
	}
	f.Roles[name] = []string{}
	return nil
}

func (f *FakeRemote) DeleteRole(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteRole", name); err != nil {
		return err
	}
	delete(f.Roles, name)
	return nil
}

func (f *FakeRemote) AttachPrivilegeToRole(ctx context.Context, role, privilege string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AttachPrivilegeToRole", role, privilege); err != nil {
		return err
	}
	privs, ok := f.Roles[role]
	if !ok {
		return fmt.Errorf("role %s not found", role)
	}
	for _, p := range privs {
		if p == privilege {
			return nil
		}
	}
	f.Roles[role] = append(privs, privilege)
	return nil
}

func (f *FakeRemote) DetachPrivilegeFromRole(ctx context.Context, role, privilege string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DetachPrivilegeFromRole", role, privilege); err != nil {
		return err
	}
	privs, ok := f.Roles[role]
	if !ok {
		return nil
	}
	kept := []string{}
	for _, p := range privs {
		if p != privilege {
			kept = append(kept, p)
		}
	}
	f.Roles[role] = kept
	return nil
}

func (f *FakeRemote) RolePrivilegeCount(ctx context.Context, role string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RolePrivilegeCount", role); err != nil {
		return 0, err
	}
	privs, ok := f.Roles[role]
	if !ok {
		return 0, fmt.Errorf("role %s not found", role)
	}
	return len(privs), nil
}

func (f *FakeRemote) UserExists(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UserExists", username); err != nil {
		return false, err
	}
	_, ok := f.Users[username]
	return ok, nil
}

func (f *FakeRemote) GetUserRoles(ctx context.Context, username string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetUserRoles", username); err != nil {
		return nil, err
	}
	roles, ok := f.Users[username]
	if !ok {
		return nil, fmt.Errorf("user %s not found", username)
	}
	return append([]string(nil), roles...), nil
}

func (f *FakeRemote) SetUserRoles(ctx context.Context, username string, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetUserRoles", username, roles); err != nil {
		return err
	}
	if _, ok := f.Users[username]; !ok {
		return fmt.Errorf("user %s not found", username)
	}
	f.Users[username] = append([]string{}, roles...)
	return nil
}

// UserRoles returns a sorted copy of the user's roles
func (f *FakeRemote) UserRoles(username string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles := append([]string{}, f.Users[username]...)
	sort.Strings(roles)
	return roles
}

func (f *FakeRemote) GrantOwner(ctx context.Context, orgID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GrantOwner", orgID, username); err != nil {
		return err
	}
	if f.Owners[orgID] == nil {
		f.Owners[orgID] = map[string]bool{}
	}
	f.Owners[orgID][username] = true
	return nil
}

func (f *FakeRemote) RevokeOwner(ctx context.Context, orgID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RevokeOwner", orgID, username); err != nil {
		return err
	}
	delete(f.Owners[orgID], username)
	return nil
}
