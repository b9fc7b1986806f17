package config

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PurgeSecret verifies the shared secret that authorises a manual purge.
// A nil *PurgeSecret rejects every candidate.
type PurgeSecret struct {
	hash []byte
}

// NewPurgeSecret prefers a stored bcrypt hash and otherwise hashes plain at
// cost. It returns nil when neither is set, which disables manual purges.
func NewPurgeSecret(hash, plain string, cost int) (*PurgeSecret, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid PURGE_SECRET_HASH: %w", err)
		}
		return &PurgeSecret{hash: []byte(hash)}, nil
	}

	if plain == "" {
		return nil, nil
	}

	generated, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash purge secret: %w", err)
	}
	return &PurgeSecret{hash: generated}, nil
}

// PurgeSecretVerifier builds the purge secret from the configuration.
func (c *Config) PurgeSecretVerifier() (*PurgeSecret, error) {
	return NewPurgeSecret(c.PurgeSecretHash, c.PurgeSecret, bcrypt.DefaultCost)
}

// Verify reports whether candidate matches the secret.
func (s *PurgeSecret) Verify(candidate string) bool {
	if s == nil || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.hash, []byte(candidate)) == nil
}
