// Package domain contains entity types without logic, just meta-data
// shared between the host session and the conferencing client.
package domain

import "errors"

const MaxUserNameLen = 64

var (
	ErrUserNameEmpty   = errors.New("user name empty")
	ErrUserNameTooLong = errors.New("user name too long")
	ErrUnknownUser     = errors.New("unknown user")
)

type UserID string

// User mirrors the host application's user record. Active reflects host
// presence, not conference membership.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	IsGM   bool   `json:"isGM"`
	Active bool   `json:"active"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLen {
		return nil, ErrUserNameTooLong
	}
	return &User{ID: id, Name: name}, nil
}
