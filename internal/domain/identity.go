// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type (
	UserID string
	Role   string
)

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleGuest   Role = "guest"
)

// Identity is the verified identity attached to a connection.
// Token validation happens outside the core; by the time an Identity
// reaches a room it is trusted.
type Identity struct {
	UserID      UserID `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

func (id Identity) Authenticated() bool { return id.UserID != "" }

// UserKey groups connections belonging to one logical user: the
// authenticated user id, or a synthetic per-connection guest key.
type UserKey string

// KeyFor computes the stable user key for a connection.
func KeyFor(id Identity, conn ConnID) UserKey {
	if id.Authenticated() {
		return UserKey(id.UserID)
	}
	return UserKey(fmt.Sprintf("guest:%s", conn))
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(userID UserID, displayName string, role Role) (Identity, error) {
	if displayName == "" {
		return Identity{}, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return Identity{}, ErrDisplayNameTooLong
	}
	if role == "" {
		role = RoleGuest
	}
	return Identity{UserID: userID, DisplayName: displayName, Role: role}, nil
}

// NewGuestName produces a throwaway display name for anonymous joins.
func NewGuestName() string {
	return "guest-" + uuid.NewString()[:8]
}
