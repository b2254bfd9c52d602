package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
	"github.com/kurihiro0119/repo-access-provisioner/internal/naming"
)

// Orchestrator runs the create or delete workflow for one validated request.
//
// A create run that fails part way leaves the resources created so far in
// place. Every create step checks existing state first, so running the same
// request again is the recovery path.
type Orchestrator struct {
	repos      RepositoryService
	access     AccessControlService
	orgs       OrgPermissionService
	namer      naming.Namer
	extraRoles []string
	log        logrus.FieldLogger
}

// Options configures an Orchestrator
type Options struct {
	Namer      naming.Namer
	// ExtraRoles are added to every user on create, next to the request's role
	ExtraRoles []string
	Logger     logrus.FieldLogger
}

// New creates an Orchestrator
func New(repos RepositoryService, access AccessControlService, orgs OrgPermissionService, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Namer.SharedRole == "" {
		opts.Namer = naming.NewNamer("")
	}
	return &Orchestrator{
		repos:      repos,
		access:     access,
		orgs:       orgs,
		namer:      opts.Namer,
		extraRoles: append([]string(nil), opts.ExtraRoles...),
		log:        log,
	}
}

// stepContext is shared by the steps of one run
type stepContext struct {
	ctx   context.Context
	req   domain.ValidatedRequest
	names domain.ResourceNames
	log   logrus.FieldLogger
}

type step struct {
	name string
	run  func(*stepContext) error
}

// plan returns the ordered steps for an action
func (o *Orchestrator) plan(action domain.Action, shared bool) ([]step, error) {
	switch action {
	case domain.ActionCreate:
		return []step{
			{"ensure-repository", o.ensureRepository},
			{"ensure-privilege", o.ensurePrivilege},
			{"ensure-role", o.ensureRole},
			{"assign-user-roles", o.assignUserRoles},
			{"grant-org-owner", o.grantOrgOwner},
		}, nil
	case domain.ActionDelete:
		steps := []step{
			{"detach-privilege", o.detachPrivilege},
		}
		if shared {
			// The shared repository, privilege and role serve other users.
			return steps, nil
		}
		return append(steps,
			step{"drop-empty-role", o.dropEmptyRole},
			step{"revoke-org-owner", o.revokeOrgOwner},
			step{"delete-privilege", o.deletePrivilege},
			step{"delete-repository", o.deleteRepository},
		), nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported action: %q", action))
	}
}

// StepNames lists the steps an action runs, in order
func (o *Orchestrator) StepNames(action domain.Action, shared bool) []string {
	steps, err := o.plan(action, shared)
	if err != nil {
		return nil
	}
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

// Run executes the workflow for req. The outcome is always populated; err is
// non-nil exactly when outcome.Success is false.
func (o *Orchestrator) Run(ctx context.Context, req domain.ValidatedRequest) (domain.OperationOutcome, error) {
	r := req.Request
	names := o.namer.ForRequest(r)
	outcome := domain.OperationOutcome{
		Action:         r.Action,
		RepositoryName: names.Repository,
		Username:       r.Username,
		OrganizationID: req.OrganizationID,
		PackageManager: r.PackageManager,
	}

	sc := &stepContext{
		ctx:   ctx,
		req:   req,
		names: names,
		log: o.log.WithFields(logrus.Fields{
			"action":     r.Action,
			"repository": names.Repository,
			"role":       names.Role,
			"username":   r.Username,
		}),
	}

	steps, err := o.plan(r.Action, r.Shared)
	if err != nil {
		return failed(outcome, r, err), err
	}

	sc.log.Infof("Starting %s for repository '%s'", r.Action, names.Repository)
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			err = apperrors.NewUnexpectedError("operation cancelled", err)
			return failed(outcome, r, err), err
		}
		sc.log.WithField("step", s.name).Debug("Running step")
		if err := s.run(sc); err != nil {
			err = fmt.Errorf("%s: %w", s.name, err)
			sc.log.WithField("step", s.name).WithError(err).Error("Step failed")
			return failed(outcome, r, err), err
		}
	}
	sc.log.Infof("%s completed for repository '%s'", r.Action, names.Repository)

	outcome.Success = true
	if r.Action == domain.ActionCreate {
		outcome.Message = "Successfully provisioned repository and privileges"
	} else {
		outcome.Message = "Successfully deprovisioned repository and privileges"
	}
	return outcome, nil
}

func failed(outcome domain.OperationOutcome, req domain.ProvisioningRequest, err error) domain.OperationOutcome {
	outcome.Success = false
	outcome.Error = err.Error()
	outcome.Request = &req
	return outcome
}

// remote classifies a collaborator error. Errors that already carry a code
// keep it.
func remote(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewRemoteError(fmt.Sprintf(format, args...), err)
}

// --- create steps ---

func (o *Orchestrator) ensureRepository(sc *stepContext) error {
	name := sc.names.Repository
	exists, err := o.repos.RepositoryExists(sc.ctx, name)
	if err != nil {
		return remote(err, "failed to look up repository '%s'", name)
	}
	if exists {
		sc.log.Infof("Repository '%s' already exists - skipping creation", name)
		return nil
	}

	pm := sc.req.PackageManager
	if !pm.ProxySupported {
		return apperrors.NewValidationError(
			fmt.Sprintf("package manager %q does not support proxy repositories", pm.Name))
	}
	if pm.DefaultURL == "" {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("no remote URL configured for package manager %q", pm.Name), nil)
	}

	if err := o.repos.CreateProxyRepository(sc.ctx, name, pm.Name, pm.DefaultURL, pm); err != nil {
		return remote(err, "failed to create repository '%s'", name)
	}
	sc.log.Infof("Repository '%s' created", name)
	return nil
}

func (o *Orchestrator) ensurePrivilege(sc *stepContext) error {
	name := sc.names.Privilege
	exists, err := o.access.PrivilegeExists(sc.ctx, name)
	if err != nil {
		return remote(err, "failed to look up privilege '%s'", name)
	}
	if exists {
		sc.log.Infof("Privilege '%s' already exists - skipping creation", name)
		return nil
	}

	spec := domain.PrivilegeSpec{
		Name:        name,
		Description: fmt.Sprintf("All permissions for repository '%s'", sc.names.Repository),
		Repository:  sc.names.Repository,
		Format:      sc.req.PackageManager.PrivilegeFormatOrDefault(),
		Actions:     append([]string(nil), domain.RepositoryViewActions...),
	}
	if err := o.access.CreatePrivilege(sc.ctx, spec); err != nil {
		return remote(err, "failed to create privilege '%s'", name)
	}
	sc.log.Infof("Privilege '%s' created", name)
	return nil
}

func (o *Orchestrator) ensureRole(sc *stepContext) error {
	role := sc.names.Role
	exists, err := o.access.RoleExists(sc.ctx, role)
	if err != nil {
		return remote(err, "failed to look up role '%s'", role)
	}
	if !exists {
		description := fmt.Sprintf("Role for %s", sc.req.Request.Username)
		if sc.req.Request.Shared {
			description = "Shared repository access"
		}
		if err := o.access.CreateRole(sc.ctx, role, description); err != nil {
			return remote(err, "failed to create role '%s'", role)
		}
		sc.log.Infof("Role '%s' created", role)
	}

	if err := o.access.AttachPrivilegeToRole(sc.ctx, role, sc.names.Privilege); err != nil {
		return remote(err, "failed to add privilege '%s' to role '%s'", sc.names.Privilege, role)
	}
	return nil
}

func (o *Orchestrator) assignUserRoles(sc *stepContext) error {
	username := sc.req.Request.Username
	exists, err := o.access.UserExists(sc.ctx, username)
	if err != nil {
		return remote(err, "failed to look up user '%s'", username)
	}
	if !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("user '%s'", username))
	}

	current, err := o.access.GetUserRoles(sc.ctx, username)
	if err != nil {
		return remote(err, "failed to read roles of user '%s'", username)
	}

	roles := make(map[string]struct{}, len(current))
	for _, r := range current {
		roles[r] = struct{}{}
	}
	var added []string
	for _, r := range append([]string{sc.names.Role}, o.extraRoles...) {
		if _, ok := roles[r]; !ok {
			roles[r] = struct{}{}
			added = append(added, r)
		}
	}
	if len(added) == 0 {
		sc.log.Infof("User '%s' already has all required roles - skipping update", username)
		return nil
	}

	if err := o.access.SetUserRoles(sc.ctx, username, sortedKeys(roles)); err != nil {
		return remote(err, "failed to update roles of user '%s'", username)
	}
	sc.log.Infof("Added roles %v to user '%s'", added, username)
	return nil
}

func (o *Orchestrator) grantOrgOwner(sc *stepContext) error {
	orgID, username := sc.req.OrganizationID, sc.req.Request.Username
	if err := o.orgs.GrantOwner(sc.ctx, orgID, username); err != nil {
		return remote(err, "failed to grant owner role to '%s' in organization '%s'", username, orgID)
	}
	sc.log.Infof("Granted owner role to '%s' in organization '%s'", username, orgID)
	return nil
}

// --- delete steps ---

func (o *Orchestrator) detachPrivilege(sc *stepContext) error {
	role, privilege := sc.names.Role, sc.names.Privilege
	if err := o.access.DetachPrivilegeFromRole(sc.ctx, role, privilege); err != nil {
		return remote(err, "failed to remove privilege '%s' from role '%s'", privilege, role)
	}
	sc.log.Infof("Privilege '%s' is not attached to role '%s'", privilege, role)
	return nil
}

func (o *Orchestrator) dropEmptyRole(sc *stepContext) error {
	role := sc.names.Role
	exists, err := o.access.RoleExists(sc.ctx, role)
	if err != nil {
		return remote(err, "failed to look up role '%s'", role)
	}
	if !exists {
		sc.log.Infof("Role '%s' not found - skipping role cleanup", role)
		return nil
	}

	count, err := o.access.RolePrivilegeCount(sc.ctx, role)
	if err != nil {
		return remote(err, "failed to read privileges of role '%s'", role)
	}
	if count > 0 {
		sc.log.Infof("Role '%s' still has %d privileges - keeping role and user assignment", role, count)
		return nil
	}

	username := sc.req.Request.Username
	userExists, err := o.access.UserExists(sc.ctx, username)
	if err != nil {
		return remote(err, "failed to look up user '%s'", username)
	}
	if userExists {
		current, err := o.access.GetUserRoles(sc.ctx, username)
		if err != nil {
			return remote(err, "failed to read roles of user '%s'", username)
		}
		remaining := make([]string, 0, len(current))
		for _, r := range current {
			if r != role {
				remaining = append(remaining, r)
			}
		}
		if len(remaining) != len(current) {
			if err := o.access.SetUserRoles(sc.ctx, username, remaining); err != nil {
				return remote(err, "failed to remove role '%s' from user '%s'", role, username)
			}
			sc.log.Infof("Removed role '%s' from user '%s'", role, username)
		}
	}

	if err := o.access.DeleteRole(sc.ctx, role); err != nil {
		return remote(err, "failed to delete role '%s'", role)
	}
	sc.log.Infof("Deleted empty role '%s'", role)
	return nil
}

func (o *Orchestrator) revokeOrgOwner(sc *stepContext) error {
	orgID, username := sc.req.OrganizationID, sc.req.Request.Username
	if err := o.orgs.RevokeOwner(sc.ctx, orgID, username); err != nil {
		return remote(err, "failed to revoke owner role from '%s' in organization '%s'", username, orgID)
	}
	sc.log.Infof("Revoked owner role from '%s' in organization '%s'", username, orgID)
	return nil
}

func (o *Orchestrator) deletePrivilege(sc *stepContext) error {
	if err := o.access.DeletePrivilege(sc.ctx, sc.names.Privilege); err != nil {
		return remote(err, "failed to delete privilege '%s'", sc.names.Privilege)
	}
	sc.log.Infof("Deleted privilege '%s'", sc.names.Privilege)
	return nil
}

func (o *Orchestrator) deleteRepository(sc *stepContext) error {
	if err := o.repos.DeleteRepository(sc.ctx, sc.names.Repository); err != nil {
		return remote(err, "failed to delete repository '%s'", sc.names.Repository)
	}
	sc.log.Infof("Deleted repository '%s'", sc.names.Repository)
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
