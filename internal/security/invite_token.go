package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// InviteSecretBytes is the number of random bytes behind an invitation secret (256 bits).
	InviteSecretBytes = 32
	inviteSaltBytes   = 16

	// MinInviteValidity and MaxInviteValidity bound how long an invitation may stay redeemable.
	MinInviteValidity = time.Hour
	MaxInviteValidity = 7 * 24 * time.Hour
)

var (
	// ErrEntropy is returned when the random source fails. Callers must treat it as fatal.
	ErrEntropy = errors.New("entropy source failure")
	// ErrInviteValidity is returned when the requested validity is outside [MinInviteValidity, MaxInviteValidity].
	ErrInviteValidity = errors.New("invitation validity out of range")
)

// Fingerprint is the stored form of an invitation secret: hex(sha256(salt || secret)) and the hex salt.
type Fingerprint struct {
	Hash string
	Salt string
}

// InviteTokenCodec mints invitation secrets and checks presented secrets against stored fingerprints.
// The secret itself is never retained.
type InviteTokenCodec struct {
	rand io.Reader
	now  func() time.Time
}

// NewInviteTokenCodec returns a codec backed by crypto/rand and the wall clock.
func NewInviteTokenCodec() *InviteTokenCodec {
	return &InviteTokenCodec{rand: rand.Reader, now: time.Now}
}

// NewInviteTokenCodecWith returns a codec with an explicit random source and clock (tests).
func NewInviteTokenCodecWith(r io.Reader, now func() time.Time) *InviteTokenCodec {
	if r == nil {
		r = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &InviteTokenCodec{rand: r, now: now}
}

// Now returns the codec's clock reading in UTC.
func (c *InviteTokenCodec) Now() time.Time {
	return c.now().UTC()
}

// Generate mints a URL-safe secret, its salted fingerprint and the expiry for the given validity.
// The secret must be handed to the recipient and then discarded.
func (c *InviteTokenCodec) Generate(validity time.Duration) (secret string, fp Fingerprint, expiresAt time.Time, err error) {
	if validity < MinInviteValidity || validity > MaxInviteValidity {
		return "", Fingerprint{}, time.Time{}, fmt.Errorf("%w: %s", ErrInviteValidity, validity)
	}
	raw := make([]byte, InviteSecretBytes)
	if _, err := io.ReadFull(c.rand, raw); err != nil {
		return "", Fingerprint{}, time.Time{}, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	salt := make([]byte, inviteSaltBytes)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", Fingerprint{}, time.Time{}, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	fp = Fingerprint{Hash: fingerprintHash(salt, secret), Salt: hex.EncodeToString(salt)}
	return secret, fp, c.Now().Add(validity), nil
}

// Matches reports whether secret hashes to fp. The digest comparison is constant time; a malformed
// stored salt never matches.
func (c *InviteTokenCodec) Matches(secret string, fp Fingerprint) bool {
	salt, err := hex.DecodeString(fp.Salt)
	if err != nil || len(salt) == 0 {
		return false
	}
	got := fingerprintHash(salt, secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(fp.Hash)) == 1
}

// IsExpired reports whether expiresAt is at or before the codec's current time.
func (c *InviteTokenCodec) IsExpired(expiresAt time.Time) bool {
	return !c.Now().Before(expiresAt)
}

func fingerprintHash(salt []byte, secret string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}
