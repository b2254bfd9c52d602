package iqserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/httpclient"
)

// DefaultOwnerRoleName is the IQ Server role granted on organizations
const DefaultOwnerRoleName = "Owner"

// Client manages organization role memberships on Sonatype IQ Server.
type Client struct {
	http          *httpclient.Client
	ownerRoleName string
	log           logrus.FieldLogger

	mu          sync.Mutex
	ownerRoleID string
}

// NewClient creates an IQ Server client; an empty ownerRoleName selects
// DefaultOwnerRoleName.
func NewClient(transport *httpclient.Client, ownerRoleName string, log logrus.FieldLogger) *Client {
	if ownerRoleName == "" {
		ownerRoleName = DefaultOwnerRoleName
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		http:          transport,
		ownerRoleName: ownerRoleName,
		log:           log.WithField("remote", "iqserver"),
	}
}

// Role is an IQ Server role
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rolesResponse struct {
	Roles []Role `json:"roles"`
}

// Roles lists every role defined on the server
func (c *Client) Roles(ctx context.Context) ([]Role, error) {
	resp, err := c.http.Expect(ctx, http.MethodGet, "/api/v2/roles", nil, nil, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	var out rolesResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// OwnerRoleID looks up the owner role id by name. The id is cached after the
// first successful lookup.
func (c *Client) OwnerRoleID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ownerRoleID != "" {
		return c.ownerRoleID, nil
	}

	roles, err := c.Roles(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == c.ownerRoleName {
			c.ownerRoleID = r.ID
			c.log.Debugf("Found '%s' role with id %s", c.ownerRoleName, r.ID)
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("role '%s' not found on IQ Server", c.ownerRoleName)
}

func membershipPath(orgID, roleID, username string) string {
	return fmt.Sprintf("/api/v2/roleMemberships/organization/%s/role/%s/user/%s",
		url.PathEscape(orgID), url.PathEscape(roleID), url.PathEscape(username))
}

// GrantOwner gives username the owner role in the organization
func (c *Client) GrantOwner(ctx context.Context, orgID, username string) error {
	roleID, err := c.OwnerRoleID(ctx)
	if err != nil {
		return err
	}
	_, err = c.http.Expect(ctx, http.MethodPut, membershipPath(orgID, roleID, username), nil, nil,
		http.StatusOK, http.StatusNoContent, http.StatusCreated)
	return err
}

// RevokeOwner removes the owner role from username in the organization. A
// membership that does not exist counts as revoked.
func (c *Client) RevokeOwner(ctx context.Context, orgID, username string) error {
	roleID, err := c.OwnerRoleID(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.Expect(ctx, http.MethodDelete, membershipPath(orgID, roleID, username), nil, nil,
		http.StatusOK, http.StatusNoContent, http.StatusNotFound)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		c.log.Debugf("Owner membership of '%s' in '%s' was already revoked", username, orgID)
	}
	return nil
}
