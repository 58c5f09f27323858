// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an identity.
// The platform carries exactly two trust levels.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Default role for standard registered users
	RoleUser UserRole = "user"
)

// # Authority Providers

// Provider identifies which authority authenticated an identity and which
// signing secret its tokens verify against.
type Provider string

const (
	// ProviderLocal is this service's own credential store and token secret.
	ProviderLocal Provider = "local"

	// ProviderFederated is the remote identity authority with its own secret.
	ProviderFederated Provider = "federated"
)

// Valid reports whether the value is a known provider tag.
func (p Provider) Valid() bool {
	return p == ProviderLocal || p == ProviderFederated
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleUser:
		return 10
	default:
		return 0
	}
}

// RoleFromAccountType maps the remote authority's account-type claim onto the
// canonical role set. Anything that is not explicitly administrative is a
// plain user.
func RoleFromAccountType(accountType string) UserRole {
	if accountType == "admin" {
		return RoleAdmin
	}
	return RoleUser
}
