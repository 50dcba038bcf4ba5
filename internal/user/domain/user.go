package domain

import (
	"errors"
	"time"
)

// User is a CMS staff account. Accounts are only created by redeeming an invitation or by seeding.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate checks the user before persistence and defaults Status to active.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == "" {
		return errors.New("role is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
