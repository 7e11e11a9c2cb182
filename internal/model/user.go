package model

import "strings"

// Role is the account kind reported by the backend.
type Role string

const (
	RoleStudent       Role = "Student"
	RoleTeacher       Role = "Teacher"
	RoleAdministrator Role = "Administrator"
)

// CanSend reports whether accounts of this role may author notifications.
func (r Role) CanSend() bool {
	return r == RoleTeacher || r == RoleAdministrator
}

// User is a directory entry, and the login payload when Token is set.
type User struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
	Group     string `json:"group,omitempty"`
	Token     string `json:"token,omitempty"`
}

// ItemID returns the user id.
func (u User) ItemID() string { return u.UserID }

// FullName returns "First Last", trimmed when either part is empty.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Group is a student group notifications can target.
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	StudentCount int    `json:"studentCount"`
}

// MaxFilterLength bounds every free-text directory filter.
const MaxFilterLength = 100

// UserFilter narrows a user directory listing. Empty fields are not sent.
type UserFilter struct {
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
	Email     string `validate:"max=100"`
	GroupID   string
}

// GroupFilter narrows the group listing.
type GroupFilter struct {
	Name string `validate:"max=100"`
}
