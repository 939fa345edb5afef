// Package token owns issuance and single-use redemption of login tokens
// ("magic links") backed by an expiring cache.
//
// Token secrets are not TypeIDs: they carry 256 bits of randomness from
// crypto/rand, hex-encoded. The secret leaves the process only inside the
// redemption link embedded in the delivered notification.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// secretBytes is the entropy of a token secret. 32 bytes hex-encodes to a
// 64-character identifier.
const secretBytes = 32

// keyPrefix namespaces token keys in the shared cache.
const keyPrefix = "token:"

// Token is a single-use, time-bound authentication grant. The record is
// immutable after issuance; it disappears on redemption or cache expiry.
type Token struct {
	// ID is the opaque random secret, hex-encoded.
	ID string `json:"id"`
	// SubjectID identifies the principal the token authenticates.
	SubjectID string `json:"subject_id"`
	// RedirectTarget is the caller-supplied destination used after
	// redemption, also the base of the redemption link.
	RedirectTarget string    `json:"redirect_target"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the token's lifetime has lapsed at the given
// instant. Checked on redeem even though the cache expires the key itself:
// application and cache clocks can disagree.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Link builds the redemption URL: {redirectTarget}/{loginPath}/{id}.
// Literal path segments, no query string.
func (t *Token) Link(loginPath string) string {
	base := strings.TrimSuffix(t.RedirectTarget, "/")
	return base + "/" + strings.Trim(loginPath, "/") + "/" + t.ID
}

// cacheKey returns the namespaced cache key for a token ID.
func cacheKey(tokenID string) string {
	return keyPrefix + tokenID
}

// newSecret generates a fresh token secret.
func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
