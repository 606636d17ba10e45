// Package snooze re-delivers an already-shown alert after a user-requested
// delay. One snooze may be pending per (endpoint, tag); a second request
// for the same pending alert supersedes the first.
package snooze

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

// DefaultDelay applies when the request carries no delaySeconds.
const DefaultDelay = 5 * time.Minute

type Dispatcher interface {
	Send(ctx context.Context, subs []models.Subscription, payload models.NotificationPayload) dispatch.Result
}

type Manager struct {
	store      store.SubscriptionStore
	dispatcher Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer // keyed by endpoint|tag
}

func NewManager(subs store.SubscriptionStore, dispatcher Dispatcher, logger *zap.Logger) *Manager {
	return &Manager{
		store:      subs,
		dispatcher: dispatcher,
		logger:     logger,
		pending:    make(map[string]*time.Timer),
	}
}

// Snooze arms a one-shot delayed re-delivery of payload to endpoint. The
// title is normalized first so stacked snoozes don't accumulate prefixes.
// Returns store.ErrNotFound when the endpoint is no longer subscribed.
func (m *Manager) Snooze(ctx context.Context, payload models.NotificationPayload, endpoint string, delay time.Duration) error {
	if _, err := m.store.GetByEndpoint(ctx, endpoint); err != nil {
		return err
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	payload = payload.WithoutSnoozePrefix()
	key := endpoint + "|" + payload.Tag

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.pending[key]; ok {
		old.Stop()
		m.logger.Info("superseding pending snooze", zap.String("key", key))
	}
	m.pending[key] = time.AfterFunc(delay, func() {
		m.deliver(key, endpoint, payload)
	})

	m.logger.Info("snooze armed",
		zap.String("endpoint", endpoint),
		zap.String("tag", payload.Tag),
		zap.Duration("delay", delay))
	return nil
}

func (m *Manager) deliver(key, endpoint string, payload models.NotificationPayload) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()

	ctx := context.Background()

	// Re-fetch: the device may have unsubscribed while the delay ran.
	sub, err := m.store.GetByEndpoint(ctx, endpoint)
	if err != nil {
		m.logger.Info("snoozed endpoint gone, dropping re-delivery", zap.String("endpoint", endpoint))
		return
	}

	m.dispatcher.Send(ctx, []models.Subscription{sub}, payload)
}

// PendingCount reports the number of armed snooze timers.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stop cancels all pending timers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.pending {
		t.Stop()
		delete(m.pending, key)
	}
}
