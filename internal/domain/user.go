// Package domain contains core domain types for the relay bot.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role gates what a user may do.
type Role string

const (
	// RoleUser is the default role assigned on first contact.
	RoleUser Role = "user"
	// RoleAdmin may run administrative commands.
	RoleAdmin Role = "admin"
	// RoleBlocked users are ignored entirely.
	RoleBlocked Role = "blocked"
)

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleBlocked:
		return RoleBlocked, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User represents a community member known to the bot.
type User struct {
	ID              int64     `json:"id"`
	Role            Role      `json:"role"`
	FirstName       string    `json:"first_name"`
	SecondName      string    `json:"second_name,omitempty"`
	ProfileImageRef string    `json:"profile_image_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DisplayName returns the first name, followed by the second name when present.
func (u *User) DisplayName() string {
	if u.SecondName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.SecondName
}

// IsBlocked returns true if the user must not be served.
func (u *User) IsBlocked() bool {
	return u.Role == RoleBlocked
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
