package nexus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	"github.com/kurihiro0119/repo-access-provisioner/internal/httpclient"
)

// restPrefix is where Nexus Repository Manager serves its REST API
const restPrefix = "/service/rest"

// Client talks to the Nexus Repository Manager REST API. It implements the
// repository and access-control services used by the orchestrator.
type Client struct {
	http *httpclient.Client
	log  logrus.FieldLogger
}

// NewClient creates a Nexus client on top of an authenticated transport whose
// base URL is the Nexus server root.
func NewClient(transport *httpclient.Client, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		http: transport,
		log:  log.WithField("remote", "nexus"),
	}
}

// Role is a Nexus security role
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Source      string   `json:"source,omitempty"`
	ReadOnly    bool     `json:"readOnly,omitempty"`
	Privileges  []string `json:"privileges"`
	Roles       []string `json:"roles"`
}

// User is a Nexus security user. The full object is sent back on update.
type User struct {
	UserID        string   `json:"userId"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	EmailAddress  string   `json:"emailAddress"`
	Source        string   `json:"source"`
	Status        string   `json:"status"`
	ReadOnly      bool     `json:"readOnly"`
	Roles         []string `json:"roles"`
	ExternalRoles []string `json:"externalRoles,omitempty"`
}

type privilegePayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Format      string   `json:"format"`
	Repository  string   `json:"repository"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, codes ...int) (*httpclient.Response, error) {
	return c.http.Expect(ctx, method, restPrefix+path, query, body, codes...)
}

// exists issues a GET and maps 200 to true and 404 to false
func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, nil
}

// remove issues a DELETE; a missing object counts as deleted
func (c *Client) remove(ctx context.Context, kind, name, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		c.log.Debugf("%s '%s' was already deleted or not found", kind, name)
		return nil
	}
	c.log.Debugf("%s '%s' deleted", kind, name)
	return nil
}

// --- repositories ---

// RepositoryExists checks whether a repository with the given name exists
func (c *Client) RepositoryExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, "/v1/repositories/"+url.PathEscape(name))
}

// CreateProxyRepository creates a proxy repository through the format's endpoint.
func (c *Client) CreateProxyRepository(ctx context.Context, name, packageManager, remoteURL string, format domain.PackageManager) error {
	if !format.ProxySupported {
		return fmt.Errorf("package manager %q does not support proxy repositories", packageManager)
	}
	if format.APIEndpoint == nil || format.APIEndpoint.Path == "" {
		return fmt.Errorf("no API endpoint configured for package manager %q", packageManager)
	}

	payload := ProxyRepositoryConfig(name, remoteURL, format)
	c.log.WithFields(logrus.Fields{
		"repository": name,
		"endpoint":   format.APIEndpoint.Path,
		"remote_url": remoteURL,
	}).Debug("Creating proxy repository")

	_, err := c.do(ctx, http.MethodPost, format.APIEndpoint.Path, nil, payload, http.StatusCreated, http.StatusOK, http.StatusNoContent)
	return err
}

// ProxyRepositoryConfig builds the repository payload. Format-specific
// settings are applied over the base settings, then the format defaults,
// then the endpoint-specific settings; each layer replaces whole top-level
// keys.
func ProxyRepositoryConfig(name, remoteURL string, format domain.PackageManager) map[string]any {
	cfg := map[string]any{
		"name":   name,
		"online": true,
		"storage": map[string]any{
			"blobStoreName":               "default",
			"strictContentTypeValidation": true,
		},
		"proxy": map[string]any{
			"remoteUrl":      remoteURL,
			"contentMaxAge":  1440,
			"metadataMaxAge": 1440,
		},
		"negativeCache": map[string]any{
			"enabled":    true,
			"timeToLive": 1440,
		},
		"httpClient": map[string]any{
			"blocked":   false,
			"autoBlock": true,
		},
	}

	overlay := func(layer map[string]any) {
		for k, v := range layer {
			cfg[k] = v
		}
	}
	overlay(format.FormatSpecificConfig)
	overlay(format.DefaultConfig)
	if format.APIEndpoint != nil {
		overlay(format.APIEndpoint.FormatSpecificConfig)
	}
	return cfg
}

// DeleteRepository deletes a repository
func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	return c.remove(ctx, "Repository", name, "/v1/repositories/"+url.PathEscape(name))
}

// --- privileges ---

// PrivilegeExists checks whether a privilege exists
func (c *Client) PrivilegeExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, "/v1/security/privileges/"+url.PathEscape(name))
}

// CreatePrivilege creates a repository-view privilege
func (c *Client) CreatePrivilege(ctx context.Context, spec domain.PrivilegeSpec) error {
	payload := privilegePayload{
		Name:        spec.Name,
		Description: spec.Description,
		Actions:     spec.Actions,
		Format:      spec.Format,
		Repository:  spec.Repository,
	}
	_, err := c.do(ctx, http.MethodPost, "/v1/security/privileges/repository-view", nil, payload,
		http.StatusCreated, http.StatusOK, http.StatusNoContent)
	return err
}

// DeletePrivilege deletes a privilege
func (c *Client) DeletePrivilege(ctx context.Context, name string) error {
	return c.remove(ctx, "Privilege", name, "/v1/security/privileges/"+url.PathEscape(name))
}

// --- roles ---

// GetRole returns the role, or nil when it does not exist
func (c *Client) GetRole(ctx context.Context, name string) (*Role, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/security/roles/"+url.PathEscape(name), nil, nil,
		http.StatusOK, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	var role Role
	if err := resp.Decode(&role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *Client) updateRole(ctx context.Context, role *Role) error {
	if role.Privileges == nil {
		role.Privileges = []string{}
	}
	if role.Roles == nil {
		role.Roles = []string{}
	}
	_, err := c.do(ctx, http.MethodPut, "/v1/security/roles/"+url.PathEscape(role.ID), nil, role,
		http.StatusNoContent, http.StatusOK)
	return err
}

// RoleExists checks whether a role exists
func (c *Client) RoleExists(ctx context.Context, name string) (bool, error) {
	role, err := c.GetRole(ctx, name)
	if err != nil {
		return false, err
	}
	return role != nil, nil
}

// CreateRole creates a role without privileges
func (c *Client) CreateRole(ctx context.Context, name, description string) error {
	role := Role{
		ID:          name,
		Name:        name,
		Description: description,
		Privileges:  []string{},
		Roles:       []string{},
	}
	_, err := c.do(ctx, http.MethodPost, "/v1/security/roles", nil, role,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)
	return err
}

// DeleteRole deletes a role
func (c *Client) DeleteRole(ctx context.Context, name string) error {
	return c.remove(ctx, "Role", name, "/v1/security/roles/"+url.PathEscape(name))
}

// AttachPrivilegeToRole adds privilege to the role unless it is already there
func (c *Client) AttachPrivilegeToRole(ctx context.Context, roleName, privilege string) error {
	role, err := c.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("role '%s' not found", roleName)
	}
	for _, p := range role.Privileges {
		if p == privilege {
			c.log.Debugf("Privilege '%s' already in role '%s'", privilege, roleName)
			return nil
		}
	}
	role.Privileges = append(role.Privileges, privilege)
	return c.updateRole(ctx, role)
}

// DetachPrivilegeFromRole removes privilege from the role. A missing role or
// link is not an error.
func (c *Client) DetachPrivilegeFromRole(ctx context.Context, roleName, privilege string) error {
	role, err := c.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		c.log.Debugf("Role '%s' not found - nothing to detach", roleName)
		return nil
	}

	kept := make([]string, 0, len(role.Privileges))
	for _, p := range role.Privileges {
		if p != privilege {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(role.Privileges) {
		c.log.Debugf("Privilege '%s' not in role '%s'", privilege, roleName)
		return nil
	}
	role.Privileges = kept
	return c.updateRole(ctx, role)
}

// RolePrivilegeCount returns how many privileges the role holds
func (c *Client) RolePrivilegeCount(ctx context.Context, roleName string) (int, error) {
	role, err := c.GetRole(ctx, roleName)
	if err != nil {
		return 0, err
	}
	if role == nil {
		return 0, fmt.Errorf("role '%s' not found", roleName)
	}
	return len(role.Privileges), nil
}

// --- users ---

// GetUser returns the user with exactly the given id, or nil
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/security/users", url.Values{"userId": {userID}}, nil,
		http.StatusOK, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	// the userId filter is a prefix match
	var users []User
	if err := resp.Decode(&users); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].UserID == userID {
			return &users[i], nil
		}
	}
	return nil, nil
}

// UserExists checks whether a user exists
func (c *Client) UserExists(ctx context.Context, username string) (bool, error) {
	user, err := c.GetUser(ctx, username)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// GetUserRoles returns the user's role ids
func (c *Client) GetUserRoles(ctx context.Context, username string) ([]string, error) {
	user, err := c.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user '%s' not found", username)
	}
	return append([]string(nil), user.Roles...), nil
}

// SetUserRoles replaces the user's role set
func (c *Client) SetUserRoles(ctx context.Context, username string, roles []string) error {
	user, err := c.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user '%s' not found", username)
	}
	user.Roles = append([]string{}, roles...)
	_, err = c.do(ctx, http.MethodPut, "/v1/security/users/"+url.PathEscape(username), nil, user,
		http.StatusNoContent, http.StatusOK)
	return err
}
