// Package pdp implements the policy decision points: a hosted Permit.io
// client and an embedded Datalog engine.
package pdp

import (
	"context"

	"pkt.systems/querydesk/core"
)

// Role is a role granted to a subject within a tenant.
type Role struct {
	Role   string `json:"role"`
	Tenant string `json:"tenant"`
}

// User is a subject known to the decision point.
type User struct {
	Key   string `json:"key"`
	Email string `json:"email,omitempty"`
	Roles []Role `json:"roles"`
}

// Admin manages subjects and role assignments.
type Admin interface {
	ListUsers(ctx context.Context) ([]User, error)
	AssignRole(ctx context.Context, subject, role, tenant string) error
	UnassignRole(ctx context.Context, subject, role, tenant string) error
}

// Engine is a decision point that can also be administered.
type Engine interface {
	core.PolicyEngine
	Admin
}
