package models

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the closed set of user roles. Roles are ordered by
// privilege: user < moderator < admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole converts a raw string into a Role. Unknown values are rejected
// rather than silently mapped to the lowest role, so a typo in an admin
// request can never normalise someone's privileges.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Bio          string     `db:"bio" json:"bio,omitempty"`
	AvatarURL    string     `db:"avatar_url" json:"avatar_url,omitempty"`
	Location     string     `db:"location" json:"location,omitempty"`
	Website      string     `db:"website" json:"website,omitempty"`
	Role         Role       `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserStats aggregates counts for the admin dashboard.
type UserStats struct {
	TotalUsers          int       `json:"total_users"`
	ActiveUsers         int       `json:"active_users"`
	AdminUsers          int       `json:"admin_users"`
	ModeratorUsers      int       `json:"moderator_users"`
	RecentRegistrations int       `json:"recent_registrations"`
	GeneratedAt         time.Time `json:"generated_at"`
}
