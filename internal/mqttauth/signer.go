// Package mqttauth signs short-lived JWTs for MQTT brokers that
// authenticate with token passwords (e.g. managed IoT brokers). The token
// is regenerated on every connect, so an expired one never outlives a
// reconnect cycle.
package mqttauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when none is configured. Long enough to
// ride out broker-side clock skew, short enough to limit replay value.
const DefaultTTL = 10 * time.Minute

// Signer produces HMAC-signed JWTs for a broker's password field.
type Signer struct {
	key     []byte
	issuer  string
	subject string
	ttl     time.Duration
}

// NewSigner returns a [Signer] for the given shared secret. Issuer and
// subject are broker-specific claim values; a zero ttl means [DefaultTTL].
func NewSigner(key []byte, issuer, subject string, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("empty JWT signing key")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{key: key, issuer: issuer, subject: subject, ttl: ttl}, nil
}

// Password returns a fresh signed token valid from now for the signer's TTL.
func (s *Signer) Password(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}
