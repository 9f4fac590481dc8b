// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"github.com/samber/oops"
)

// Role is an account's privilege level. Roles are compared by membership in
// explicit sets, never by ordinal.
type Role string

// Known roles.
const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole converts s to a Role. Unknown values fail validation.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", validationError("role", "unknown role %q", s)
	}
	return r, nil
}

// RoleSet is an explicit set of roles.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet.
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// IsAllowed is the role authorizer: it allows principalRole iff it is a member
// of required. There is no hierarchy; SUPER_ADMIN does not satisfy an
// ADMIN-only set.
func IsAllowed(principalRole Role, required RoleSet) bool {
	return required.Contains(principalRole)
}

// Operation names an externally exposed AuthService operation.
type Operation string

// Exposed operations.
const (
	OpSignUp              Operation = "signUp"
	OpLogin               Operation = "login"
	OpRefreshTokens       Operation = "refreshTokens"
	OpLogout              Operation = "logout"
	OpChangePassword      Operation = "changePassword"
	OpForgotPassword      Operation = "forgotPassword"
	OpVerifyResetCode     Operation = "verifyResetCode"
	OpResetPassword       Operation = "resetPassword"
	OpUpdateUserRole      Operation = "updateUserRole"
	OpCreateSuperAdmin    Operation = "createSuperAdmin"
	OpUpdateAccountStatus Operation = "updateAccountStatus"
	OpGetUserStatus       Operation = "getUserStatus"
	OpGetAllUsers         Operation = "getAllUsers"
	OpHealth              Operation = "health"
)

// Requirement declares what a caller needs to invoke an operation.
// Authenticated without Roles admits any verified principal.
type Requirement struct {
	Authenticated bool
	Roles         RoleSet
}

// Policy maps every operation to its requirement. Operations missing from the
// table are denied.
type Policy map[Operation]Requirement

// DefaultPolicy returns the operation table used by the request layer.
//
// createSuperAdmin is listed as public because its gate (existing
// SUPER_ADMIN principal or bootstrap token) is decided by the service.
func DefaultPolicy() Policy {
	admins := Roles(RoleAdmin, RoleSuperAdmin)
	return Policy{
		OpSignUp:              {},
		OpLogin:               {},
		OpRefreshTokens:       {},
		OpLogout:              {},
		OpForgotPassword:      {},
		OpVerifyResetCode:     {},
		OpResetPassword:       {},
		OpHealth:              {},
		OpCreateSuperAdmin:    {},
		OpChangePassword:      {Authenticated: true},
		OpUpdateUserRole:      {Authenticated: true, Roles: Roles(RoleSuperAdmin)},
		OpUpdateAccountStatus: {Authenticated: true, Roles: admins},
		OpGetUserStatus:       {Authenticated: true, Roles: admins},
		OpGetAllUsers:         {Authenticated: true, Roles: admins},
	}
}

// Authorize checks principal against the requirement of op. A nil principal
// means the caller is anonymous.
func (p Policy) Authorize(op Operation, principal *Principal) error {
	req, ok := p[op]
	if !ok {
		return oops.Code(CodeForbidden).With("operation", string(op)).Errorf("operation is not permitted")
	}
	if !req.Authenticated {
		return nil
	}
	if principal == nil {
		return oops.Code(CodeUnauthorized).With("operation", string(op)).Errorf("authentication required")
	}
	if req.Roles != nil && !IsAllowed(principal.Role, req.Roles) {
		return oops.Code(CodeForbidden).
			With("operation", string(op)).
			With("role", string(principal.Role)).
			Errorf("insufficient role")
	}
	return nil
}

// statusManageable lists which target roles each acting role may activate or
// deactivate.
var statusManageable = map[Role]RoleSet{
	RoleSuperAdmin: Roles(RoleUser, RoleAdmin, RoleSuperAdmin),
	RoleAdmin:      Roles(RoleUser),
}

// CanManageStatus reports whether an actor holding actor may change the
// active status of an account holding target.
func CanManageStatus(actor, target Role) bool {
	return IsAllowed(target, statusManageable[actor])
}
