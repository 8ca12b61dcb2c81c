// Package identity derives the deterministic, non-reversible identifiers the
// dedup scheme depends on. Nothing here is random: idempotency under retried
// ingestion requires the same natural key to always hash to the same value,
// across runs and deployments.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Service computes keyed hashes over a fixed server-side secret. Rotating the
// secret would change every issued identifier, so the key must be stable.
type Service struct {
	key []byte
}

func New(hashKey string) (*Service, error) {
	if hashKey == "" {
		return nil, fmt.Errorf("hash key is required")
	}
	return &Service{key: []byte(hashKey)}, nil
}

// SecretHash returns base64(HMAC-SHA256(key, seed)).
func (s *Service) SecretHash(seed string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(seed))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BorrowerIdentifier is the stable dedup key for one supplier.
func (s *Service) BorrowerIdentifier(legalIdentifier string) string {
	return s.SecretHash(legalIdentifier)
}

// DedupKey guarantees at most one application per (borrower, award) pair.
func (s *Service) DedupKey(legalIdentifier, sourceContractID string) string {
	return s.SecretHash(legalIdentifier + sourceContractID)
}

// CopyDedupKey derives the dedup key for a find-alternative-credit copy from
// the original's key. Deterministic, and disjoint from first-generation keys.
func (s *Service) CopyDedupKey(dedupKey string) string {
	return s.SecretHash(dedupKey + ":alternative")
}

// OpaqueToken derives the borrower-facing access token from the dedup key.
// A UUIDv5 over the key: stable, and not invertible by an external holder.
func OpaqueToken(seed string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed)).String()
}
