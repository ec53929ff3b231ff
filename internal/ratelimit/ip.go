package ratelimit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const minSaltLength = 32

// NormalizeIP trims the raw client address and rejects values that cannot
// identify a caller. Absence of a usable address must never bypass rate
// limiting, so the empty string and the literal "unknown" both fail.
func NormalizeIP(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "unknown") {
		return "", ErrMissingIP
	}
	return trimmed, nil
}

// Hasher produces keyed one-way digests of client addresses. Only digests are
// ever persisted; rotating the salt breaks cross-time correlation without
// exposing historical addresses.
type Hasher struct {
	salt []byte
}

// NewHasher validates the secret salt and returns a Hasher.
func NewHasher(salt string) (*Hasher, error) {
	if len(strings.TrimSpace(salt)) < minSaltLength {
		return nil, fmt.Errorf("ratelimit: ip hash salt must be at least %d characters", minSaltLength)
	}
	return &Hasher{salt: []byte(salt)}, nil
}

// HashIP returns the hex-encoded HMAC-SHA256 digest of the normalized address.
// Same address and salt always yield the same digest.
func (h *Hasher) HashIP(ip string) (string, error) {
	normalized, err := NormalizeIP(ip)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
