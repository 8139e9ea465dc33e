package models

import (
	"time"
)

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleLecturer   UserRole = "lecturer"
	RoleAccountant UserRole = "accountant"
	RoleAdmin      UserRole = "admin"
)

// User is the portal user as seen by this service. Users live in the identity
// provider; nothing here is persisted.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	AvatarURL     *string `json:"avatar_url,omitempty"`
	EmailVerified bool    `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the verified caller of a request. It is built once by the auth
// middleware and passed explicitly to every service call.
type Identity struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}

func NewIdentity(userID string, role UserRole) *Identity {
	return &Identity{UserID: userID, Role: role}
}

func (i *Identity) IsStudent() bool {
	return i != nil && i.Role == RoleStudent
}

// CanManageQuizzes reports whether the caller may author quizzes and view results.
func (i *Identity) CanManageQuizzes() bool {
	return i != nil && (i.Role == RoleLecturer || i.Role == RoleAdmin)
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
