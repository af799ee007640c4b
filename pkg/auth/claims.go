package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the caller's standing inside a tenant.
type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
)

var roleRank = map[Role]int{
	RoleStaff:   1,
	RoleManager: 2,
	RoleOwner:   3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants. Unknown roles
// grant nothing.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	return ok && have >= roleRank[min]
}

// AccessTokenPayload is what MintAccessToken signs.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
}

// AccessTokenClaims is the JWT presented by clients. Every ledger operation
// is scoped to TenantID.
type AccessTokenClaims struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     Role      `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// EffectiveRole treats a token without a role as staff.
func (c *AccessTokenClaims) EffectiveRole() Role {
	if c == nil || c.Role == "" {
		return RoleStaff
	}
	return c.Role
}
