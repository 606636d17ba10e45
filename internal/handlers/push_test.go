package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/prayer"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/snooze"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

// okTransport reports every delivery as accepted.
type okTransport struct{}

func (okTransport) Send(ctx context.Context, sub models.Subscription, payload []byte, urgent bool) (dispatch.Outcome, error) {
	return dispatch.Delivered, nil
}

func newTestHandler(t *testing.T) (*Handler, store.SubscriptionStore) {
	t.Helper()
	logger := zap.NewNop()
	s := store.NewMemoryStore()
	d := dispatch.New(okTransport{}, s, logger)
	snoozer := snooze.NewManager(s, d, logger)
	t.Cleanup(snoozer.Stop)
	h := NewHandler(s, prayer.NewService(nil, logger), d, snoozer, nil, "test-vapid-public", "test-session-secret", logger)
	return h, s
}

func subscribeBody(endpoint string) string {
	return fmt.Sprintf(`{
		"subscription": {"endpoint": %q, "keys": {"p256dh": "p", "auth": "a"}},
		"tz": "Africa/Cairo",
		"location": {"lat": 30.0444, "lon": 31.2357}
	}`, endpoint)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestPublicKeyHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/notifications/public-key", nil)
	rec := httptest.NewRecorder()
	h.PublicKeyHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "test-vapid-public", rec.Body.String())
}

func TestSubscribeIsIdempotentByEndpoint(t *testing.T) {
	h, s := newTestHandler(t)

	rec, body := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["id"].(string)
	require.NotEmpty(t, id)

	rec, body = doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["id"], "re-subscribing the same endpoint keeps the record")

	subs, err := s.ListActive(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscribeValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{`, "invalid request body"},
		{
			"missing endpoint",
			`{"subscription": {"keys": {"p256dh": "p", "auth": "a"}}}`,
			"subscription.endpoint is required",
		},
		{
			"missing keys",
			`{"subscription": {"endpoint": "https://push/x"}}`,
			"subscription.keys are required",
		},
		{
			"unknown timezone",
			`{"subscription": {"endpoint": "https://push/x", "keys": {"p256dh": "p", "auth": "a"}}, "tz": "Mars/Olympus"}`,
			"unknown timezone: Mars/Olympus",
		},
		{
			"reminder out of range",
			`{"subscription": {"endpoint": "https://push/x", "keys": {"p256dh": "p", "auth": "a"}},
			  "preferences": {"enabled": true, "reminderMinutes": 99}}`,
			"reminderMinutes: must be between 0 and 60",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, body["error"])
		})
	}
}

func TestUnsubscribeByEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, _ := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, h.UnsubscribeHandler, http.MethodPost, "/notifications/unsubscribe",
		`{"endpoint": "https://push/dev1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["deleted"])

	// Unsubscribing again is a no-op, not an error.
	rec, body = doJSON(t, h.UnsubscribeHandler, http.MethodPost, "/notifications/unsubscribe",
		`{"endpoint": "https://push/dev1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["deleted"])
}

func TestUnsubscribeWithoutIdentity(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, body := doJSON(t, h.UnsubscribeHandler, http.MethodPost, "/notifications/unsubscribe", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "endpoint or authenticated session required", body["error"])
}

func TestTestHandlerRequiresSubscription(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, body := doJSON(t, h.TestHandler, http.MethodPost, "/notifications/test",
		`{"endpoint": "https://push/nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no active subscriptions", body["error"])
}

func TestTestHandlerDelivers(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, _ := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, h.TestHandler, http.MethodPost, "/notifications/test",
		`{"endpoint": "https://push/dev1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["delivered"])
}

func TestSnoozeHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, _ := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("missing fields", func(t *testing.T) {
		rec, body := doJSON(t, h.SnoozeHandler, http.MethodPost, "/notifications/snooze", `{"delaySeconds": 60}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "originalPayload and endpoint are required", body["error"])
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		rec, body := doJSON(t, h.SnoozeHandler, http.MethodPost, "/notifications/snooze",
			`{"originalPayload": {"title": "Fajr Prayer", "tag": "prayer-fajr-2025-01-15-main"},
			  "endpoint": "https://push/nobody", "delaySeconds": 60}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "unknown endpoint", body["error"])
	})

	t.Run("armed with explicit delay", func(t *testing.T) {
		rec, body := doJSON(t, h.SnoozeHandler, http.MethodPost, "/notifications/snooze",
			`{"originalPayload": {"title": "Snooze: Fajr Prayer", "tag": "prayer-fajr-2025-01-15-main"},
			  "endpoint": "https://push/dev1", "delaySeconds": 120}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(120), body["delaySeconds"])
	})

	t.Run("default delay", func(t *testing.T) {
		rec, body := doJSON(t, h.SnoozeHandler, http.MethodPost, "/notifications/snooze",
			`{"originalPayload": {"title": "Fajr Prayer", "tag": "prayer-fajr-2025-01-15-main"},
			  "endpoint": "https://push/dev1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(300), body["delaySeconds"])
	})
}

func TestStatusHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, _ := doJSON(t, h.SubscribeHandler, http.MethodPost, "/notifications/subscribe", subscribeBody("https://push/dev1"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/notifications/status?endpoint=https%3A%2F%2Fpush%2Fdev1", nil)
	rec2 := httptest.NewRecorder()
	h.StatusHandler(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))

	subs := body["subscriptions"].([]any)
	require.Len(t, subs, 1)

	prefs := body["preferences"].(map[string]any)
	assert.Equal(t, true, prefs["enabled"])
	assert.Equal(t, float64(10), prefs["reminderMinutes"])

	times := body["times"].(map[string]any)
	assert.Equal(t, "Africa/Cairo", times["tz"])
	assert.NotEmpty(t, times["fajr"])
}

func TestStatusHandlerAnonymousWithoutEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/notifications/status", nil)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["subscriptions"])
	assert.NotContains(t, body, "preferences")
}

func TestSessionIdentityResolvesUser(t *testing.T) {
	h, s := newTestHandler(t)

	for _, endpoint := range []string{"https://push/dev1", "https://push/dev2"} {
		_, err := s.Upsert(t.Context(), &models.Subscription{
			UserID:      "u1",
			Endpoint:    endpoint,
			Keys:        models.SubscriptionKeys{P256dh: "p", Auth: "a"},
			Timezone:    "UTC",
			Preferences: models.DefaultPreferences(),
		})
		require.NoError(t, err)
	}

	// Mint a session cookie with the handler's own store, the way the
	// external auth service would.
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	seedRec := httptest.NewRecorder()
	session, err := h.sessions.Get(seed, sessionName)
	require.NoError(t, err)
	session.Values["user_id"] = "u1"
	require.NoError(t, session.Save(seed, seedRec))

	req := httptest.NewRequest(http.MethodGet, "/notifications/status", nil)
	for _, c := range seedRec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, "u1", h.currentUserID(req))

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["subscriptions"], 2)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, body := doJSON(t, h.HealthzHandler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
