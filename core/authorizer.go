package core

import (
	"context"
	"fmt"

	"pkt.systems/querydesk/internal/logx"
	"pkt.systems/querydesk/schema"
)

// Authorization reasons reported to the caller.
const (
	ReasonInvalidUser = "Invalid user"
	ReasonGranted     = "Permission granted"
	ReasonDenied      = "You don't have permission to perform this action"
)

// Authorizer decides whether a user may perform an action kind.
type Authorizer struct {
	users         UserDirectory
	permissions   schema.PermissionMap
	policy        PolicyEngine
	emailFallback bool
}

// NewAuthorizer constructs an authorizer. policy may be nil, in which case
// every known user is refused with a sync error.
func NewAuthorizer(users UserDirectory, permissions schema.PermissionMap, policy PolicyEngine, emailFallback bool) (*Authorizer, error) {
	if users == nil {
		return nil, fmt.Errorf("authorizer requires a user directory")
	}
	if err := permissions.Validate(); err != nil {
		return nil, err
	}
	return &Authorizer{users: users, permissions: permissions, policy: policy, emailFallback: emailFallback}, nil
}

// Authorize returns the decision and a human-readable reason. There is no
// decision cache; every call syncs the user and asks the policy engine.
func (a *Authorizer) Authorize(ctx context.Context, userID schema.UserID, kind schema.ActionKind) (bool, string) {
	log := logx.WithAction(logx.WithUser(ctx, userID), kind)
	user, ok := a.users.Lookup(userID)
	if !ok {
		log.Info("authorize denied", "reason", ReasonInvalidUser)
		return false, ReasonInvalidUser
	}
	perm, ok := a.permissions.Lookup(kind)
	if !ok {
		return false, fmt.Sprintf("Unknown action type: %s", kind)
	}
	if a.policy == nil {
		return false, fmt.Sprintf("Error syncing user: policy engine %v", schema.ErrNotConfigured)
	}
	subject := user.Subject()
	if err := a.policy.SyncUser(ctx, subject); err != nil {
		log.Warn("authorize sync failed", "subject", subject.Key, "err", err)
		return false, fmt.Sprintf("Error syncing user: %v", err)
	}
	allowed, err := a.policy.Check(ctx, subject.Key, perm.Action, perm.Resource)
	if err != nil {
		log.Warn("authorize check failed", "subject", subject.Key, "err", err)
		return false, fmt.Sprintf("Error checking permissions: %v", err)
	}
	if !allowed && a.emailFallback && subject.Email != "" && subject.Email != subject.Key {
		allowed, err = a.policy.Check(ctx, subject.Email, perm.Action, perm.Resource)
		if err != nil {
			log.Warn("authorize email check failed", "subject", subject.Email, "err", err)
			return false, fmt.Sprintf("Error checking permissions: %v", err)
		}
	}
	if !allowed {
		log.Info("authorize denied", "operation", perm.Action, "resource", perm.Resource)
		return false, ReasonDenied
	}
	log.Debug("authorize granted", "operation", perm.Action, "resource", perm.Resource)
	return true, ReasonGranted
}
