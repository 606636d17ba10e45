package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

// MemoryStore is an in-process SubscriptionStore used in tests and when no
// database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*models.Subscription // keyed by endpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*models.Subscription)}
}

func (s *MemoryStore) Upsert(ctx context.Context, sub *models.Subscription) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same sweep the Postgres store runs before every insert.
	for endpoint := range s.subs {
		if endpoint == "" {
			delete(s.subs, endpoint)
		}
	}

	now := time.Now().UTC()
	if existing, ok := s.subs[sub.Endpoint]; ok {
		existing.Keys = sub.Keys
		existing.Timezone = sub.Timezone
		existing.Location = sub.Location
		existing.Preferences = sub.Preferences
		if sub.UserID != "" {
			existing.UserID = sub.UserID
		}
		existing.IsActive = true
		existing.HealthFailures = 0
		existing.UpdatedAt = now
		sub.ID = existing.ID
		return existing.ID, nil
	}

	stored := *sub
	stored.ID = uuid.NewString()
	stored.IsActive = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.subs[stored.Endpoint] = &stored
	sub.ID = stored.ID
	return stored.ID, nil
}

func (s *MemoryStore) GetByEndpoint(ctx context.Context, endpoint string) (models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[endpoint]
	if !ok {
		return models.Subscription{}, ErrNotFound
	}
	return *sub, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, userID string) ([]models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Subscription
	for _, sub := range s.subs {
		if !sub.IsActive || !sub.Deliverable() {
			continue
		}
		if userID != "" && sub.UserID != userID {
			continue
		}
		out = append(out, *sub)
	}
	// Same order the Postgres store returns, so the first device is a
	// stable preference source for multi-device users.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out, nil
}

func (s *MemoryStore) DeleteByEndpoint(ctx context.Context, endpoint string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[endpoint]; !ok {
		return 0, nil
	}
	delete(s.subs, endpoint)
	return 1, nil
}

func (s *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for endpoint, sub := range s.subs {
		if sub.UserID == userID {
			delete(s.subs, endpoint)
			n++
		}
	}
	return n, nil
}
