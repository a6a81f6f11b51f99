package admin

import (
	"time"
)

// Role ranks what an authenticated operator may do against the debug
// surface. Every principal here can already read process-level state
// once authenticated at all. Registering further operators is gated by
// the invite code, not by the role of whoever hands it out.
type Role string

const (
	RoleViewer Role = "viewer" // may read /debug/pool
	RoleAdmin  Role = "admin"  // given to the bootstrap operator; no endpoint requires it
)

// rank orders roles for RequireRole comparisons; unknown roles rank below
// RoleViewer so a corrupt or stale token never satisfies a minimum check.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Operator is an account permitted to authenticate against the debug/admin
// HTTP surface (spec.md §4.9). It is deliberately minimal: this package
// controls read access to a node agent's introspection dump, not a
// multi-tenant user model.
type Operator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Team         string    `json:"team,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LoginRequest is the POST /admin/auth/login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the POST /admin/auth/register payload. Unlike a
// public signup form, creating an operator past the first (bootstrap)
// account requires InviteCode to match the server's configured
// registration secret — this surface provisions a small ops roster, not
// anonymous users.
type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Team       string `json:"team,omitempty"`
	Password   string `json:"password"`
	Role       Role   `json:"role,omitempty"`
	InviteCode string `json:"inviteCode,omitempty"`
}

// AuthResponse is returned by both register and login.
type AuthResponse struct {
	Operator Operator `json:"operator"`
	Token    string   `json:"token"`
}

// TokenClaims is the JWT payload minted for an authenticated operator.
type TokenClaims struct {
	OperatorID string `json:"operator_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Exp        int64  `json:"exp"`
}
