package snooze

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []models.NotificationPayload
	targets  [][]models.Subscription
}

func (d *recordingDispatcher) Send(ctx context.Context, subs []models.Subscription, payload models.NotificationPayload) dispatch.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	d.targets = append(d.targets, subs)
	return dispatch.Result{Delivered: len(subs)}
}

func (d *recordingDispatcher) sent() []models.NotificationPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.NotificationPayload(nil), d.payloads...)
}

func newFixture(t *testing.T) (*Manager, store.SubscriptionStore, *recordingDispatcher) {
	t.Helper()
	s := store.NewMemoryStore()
	_, err := s.Upsert(t.Context(), &models.Subscription{
		Endpoint: "https://push/dev1",
		Keys:     models.SubscriptionKeys{P256dh: "p", Auth: "a"},
		Timezone: "UTC",
	})
	require.NoError(t, err)

	d := &recordingDispatcher{}
	m := NewManager(s, d, zap.NewNop())
	t.Cleanup(m.Stop)
	return m, s, d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSnoozeStripsPrefixAndRedelivers(t *testing.T) {
	m, _, d := newFixture(t)

	payload := models.NotificationPayload{
		Title: models.SnoozePrefix + "Fajr Prayer",
		Body:  "It is time for Fajr.",
		Tag:   "prayer-fajr-2025-01-15-main",
	}
	require.NoError(t, m.Snooze(t.Context(), payload, "https://push/dev1", 30*time.Millisecond))
	assert.Equal(t, 1, m.PendingCount())

	waitFor(t, func() bool { return len(d.sent()) == 1 })

	got := d.sent()[0]
	assert.Equal(t, "Fajr Prayer", got.Title)
	assert.Equal(t, "prayer-fajr-2025-01-15-main", got.Tag)
	assert.Equal(t, 0, m.PendingCount())
}

func TestSnoozeUnknownEndpoint(t *testing.T) {
	m, _, _ := newFixture(t)

	err := m.Snooze(t.Context(), models.NotificationPayload{Tag: "x"}, "https://push/nobody", time.Minute)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, m.PendingCount())
}

func TestSecondSnoozeSupersedesFirst(t *testing.T) {
	m, _, d := newFixture(t)

	payload := models.NotificationPayload{Title: "Asr Prayer", Tag: "prayer-asr-2025-01-15-main"}

	// First timer is long enough that the second request replaces it
	// before it can fire.
	require.NoError(t, m.Snooze(t.Context(), payload, "https://push/dev1", time.Second))
	require.NoError(t, m.Snooze(t.Context(), payload, "https://push/dev1", 30*time.Millisecond))
	assert.Equal(t, 1, m.PendingCount())

	waitFor(t, func() bool { return len(d.sent()) == 1 })

	// Give the superseded timer's window a chance to elapse too.
	time.Sleep(1100 * time.Millisecond)
	assert.Len(t, d.sent(), 1)
}

func TestSnoozeDropsWhenEndpointUnsubscribes(t *testing.T) {
	m, s, d := newFixture(t)

	payload := models.NotificationPayload{Title: "Isha Prayer", Tag: "prayer-isha-2025-01-15-main"}
	require.NoError(t, m.Snooze(t.Context(), payload, "https://push/dev1", 30*time.Millisecond))

	_, err := s.DeleteByEndpoint(t.Context(), "https://push/dev1")
	require.NoError(t, err)

	waitFor(t, func() bool { return m.PendingCount() == 0 })
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, d.sent())
}
