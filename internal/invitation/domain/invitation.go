package domain

import (
	"time"
)

// Status is the externally visible state of an invitation. Cancelled invitations are deleted and
// have no status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExpired  Status = "expired"
	StatusAccepted Status = "accepted"
)

// Invitation is the persisted record behind one invitation. The secret itself is never stored; only
// its salted fingerprint (TokenHash, TokenSalt).
type Invitation struct {
	ID        string
	Email     string
	Role      string
	InvitedBy string
	// TripID optionally scopes the invitation to one trip; empty means CMS-wide.
	TripID    string
	Metadata  map[string]string
	TokenHash string
	TokenSalt string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	UsedBy    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusAt derives the invitation status at now. Used is terminal; otherwise expiry is a clock check.
func (i *Invitation) StatusAt(now time.Time) Status {
	if i.Used {
		return StatusAccepted
	}
	if !now.Before(i.ExpiresAt) {
		return StatusExpired
	}
	return StatusPending
}

// ActiveAt reports whether the invitation is unused and unexpired at now.
func (i *Invitation) ActiveAt(now time.Time) bool {
	return i.StatusAt(now) == StatusPending
}

// Clone returns a deep copy so callers can't mutate stored state.
func (i *Invitation) Clone() *Invitation {
	if i == nil {
		return nil
	}
	c := *i
	if i.UsedAt != nil {
		t := *i.UsedAt
		c.UsedAt = &t
	}
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ParseStatus maps a filter string to a Status; empty and unknown values yield ok=false.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusExpired, StatusAccepted:
		return Status(s), true
	}
	return "", false
}
