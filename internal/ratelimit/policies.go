package ratelimit

import "time"

// Policies groups the three independent invitation limits.
type Policies struct {
	// Issuance bounds invitations created or resent per inviter (or per IP when anonymous).
	Issuance Policy
	// Validation bounds secret checks per client IP and secret prefix.
	Validation Policy
	// Acceptance bounds redemption attempts per client IP.
	Acceptance Policy
	// ValidationPrefixLen is how many leading secret characters join the validation key.
	ValidationPrefixLen int
}

// DefaultPolicies are the production limits.
func DefaultPolicies() Policies {
	return Policies{
		Issuance:            Policy{Name: "issuance", Limit: 10, Window: time.Hour},
		Validation:          Policy{Name: "validation", Limit: 20, Window: time.Hour},
		Acceptance:          Policy{Name: "acceptance", Limit: 5, Window: 15 * time.Minute},
		ValidationPrefixLen: 8,
	}
}

// IssuanceKey keys issuance by inviter, falling back to client IP.
func IssuanceKey(inviterID, clientIP string) string {
	if inviterID != "" {
		return "inviter:" + inviterID
	}
	return "ip:" + clientIP
}

// ValidationKey keys validation by client IP and the first n characters of the presented secret.
func ValidationKey(clientIP, secret string, n int) string {
	if n > 0 && len(secret) > n {
		secret = secret[:n]
	}
	return "ip:" + clientIP + ":" + secret
}

// AcceptanceKey keys acceptance by client IP.
func AcceptanceKey(clientIP string) string {
	return "ip:" + clientIP
}
