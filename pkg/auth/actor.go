package auth

import (
	"github.com/google/uuid"

	"github.com/danielcastano/rentora-backend/pkg/enums"
)

// Actor is the authenticated principal services act on behalf of. It is
// passed explicitly so core logic never reads identity from ambient state.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// IsAgent reports whether the actor holds the agent role.
func (a Actor) IsAgent() bool {
	return a.Role == enums.UserRoleAgent
}

// Valid reports whether the actor carries a usable identity.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}
