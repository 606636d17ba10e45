package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

const (
	timesTTL      = 48 * time.Hour
	eventsChannel = "notifications:events"
)

// ErrNotFound is returned when no subscription matches the given key.
var ErrNotFound = errors.New("subscription not found")

// SubscriptionStore is the durable record of push endpoints (PostgreSQL in
// production, memory in development and tests).
type SubscriptionStore interface {
	// Upsert inserts or updates by endpoint and returns the record id.
	// Subscribing twice with the same endpoint never duplicates; the new
	// call's tz/preferences/location win and the row is re-activated.
	Upsert(ctx context.Context, sub *models.Subscription) (string, error)
	GetByEndpoint(ctx context.Context, endpoint string) (models.Subscription, error)
	// ListActive returns deliverable active records, for one user or for
	// everyone when userID is empty.
	ListActive(ctx context.Context, userID string) ([]models.Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) (int, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// RedisStore caches computed prayer times and fans client events out to
// connected tabs via pub/sub.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

func (s *RedisStore) GetTimes(ctx context.Context, key string) (models.PrayerTimesForDay, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return models.PrayerTimesForDay{}, false, nil
	}
	if err != nil {
		return models.PrayerTimesForDay{}, false, err
	}

	var t models.PrayerTimesForDay
	if err := json.Unmarshal(data, &t); err != nil {
		return models.PrayerTimesForDay{}, false, err
	}
	return t, true, nil
}

func (s *RedisStore) SetTimes(ctx context.Context, key string, t models.PrayerTimesForDay) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, timesTTL).Err()
}

// PublishEvent pushes a client event onto the pub/sub channel backing the
// SSE stream.
func (s *RedisStore) PublishEvent(ctx context.Context, event models.ClientEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, eventsChannel, data).Err()
}

func (s *RedisStore) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, eventsChannel)
}
