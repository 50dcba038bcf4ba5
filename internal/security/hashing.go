package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordLength is returned for empty passwords and passwords longer than bcrypt accepts.
var ErrPasswordLength = errors.New("password length not accepted")

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// Hasher hashes account passwords with bcrypt. Plaintext passwords are never stored or logged.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with cost clamped to bcrypt's [MinCost, MaxCost]; zero means DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password for storage on the account's local identity.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" || len(password) > maxPasswordBytes {
		return "", ErrPasswordLength
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Matches reports whether password matches the stored bcrypt hash.
func (h *Hasher) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
