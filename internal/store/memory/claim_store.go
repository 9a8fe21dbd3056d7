package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type claim struct {
	owner     string
	expiresAt time.Time
}

// ClaimStore implements store.ClaimStore using in-memory storage.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[uuid.UUID]claim
	now    func() time.Time
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		claims: make(map[uuid.UUID]claim),
		now:    time.Now,
	}
}

// Claim takes the marker unless another owner holds an unexpired claim.
func (s *ClaimStore) Claim(ctx context.Context, tenantID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.claims[tenantID]; ok && existing.owner != owner && now.Before(existing.expiresAt) {
		return false, nil
	}

	s.claims[tenantID] = claim{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops the marker if owner still holds it.
func (s *ClaimStore) Release(ctx context.Context, tenantID uuid.UUID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.claims[tenantID]; ok && existing.owner == owner {
		delete(s.claims, tenantID)
	}
	return nil
}
