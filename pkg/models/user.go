package models

import (
	"errors"
	"strings"
	"time"
)

// User represents a user in the system.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key implements store.Entity.
func (u User) Key() string { return u.ID }

// CreateUserRequest is the request body for creating a user.
type CreateUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// ErrBlankName is returned by Normalize when the name is only whitespace.
var ErrBlankName = errors.New("name must not be blank")

// Normalize trims surrounding whitespace from the fields. Binding has already
// checked presence, so only a name that trims to nothing is rejected here.
func (r *CreateUserRequest) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Name == "" {
		return ErrBlankName
	}
	return nil
}
