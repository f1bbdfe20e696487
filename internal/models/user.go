package models

import "strings"

// User is an operator account as returned by the auth and users endpoints.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FName    string `json:"fname,omitempty"`
	LName    string `json:"lname,omitempty"`
	Phone    string `json:"phone,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	CVAccess bool   `json:"cv_access"`
}

// DisplayName returns "fname lname", or "Unknown User" when both are empty.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FName) + " " + strings.TrimSpace(u.LName))
	if name == "" {
		return "Unknown User"
	}
	return name
}

// AccessStatus is the admin-facing approval state.
func (u User) AccessStatus() string {
	if u.CVAccess {
		return "approved"
	}
	return "rejected"
}
