package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/snooze"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

// PublicKeyHandler returns the VAPID public key the browser needs to
// subscribe.
func (h *Handler) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.VAPIDPublicKey))
}

type subscribeRequest struct {
	Subscription struct {
		Endpoint       string                  `json:"endpoint"`
		ExpirationTime *float64                `json:"expirationTime"`
		Keys           models.SubscriptionKeys `json:"keys"`
	} `json:"subscription"`
	TZ          string              `json:"tz"`
	Preferences *models.Preferences `json:"preferences"`
	Location    models.Location     `json:"location"`
}

// SubscribeHandler upserts one device's push subscription. Idempotent by
// endpoint; subscribing a new device never deactivates the user's others.
func (h *Handler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Subscription.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "subscription.endpoint is required")
		return
	}
	if req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		h.writeError(w, http.StatusBadRequest, "subscription.keys are required")
		return
	}

	tz := req.TZ
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown timezone: "+tz)
		return
	}

	prefs := models.DefaultPreferences()
	if req.Preferences != nil {
		prefs = *req.Preferences
	}
	if err := prefs.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := models.Subscription{
		UserID:      h.currentUserID(r),
		Endpoint:    req.Subscription.Endpoint,
		Keys:        req.Subscription.Keys,
		Timezone:    tz,
		Location:    req.Location,
		Preferences: prefs,
	}

	id, err := h.Store.Upsert(r.Context(), &sub)
	if err != nil {
		h.Logger.Error("subscription upsert failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// UnsubscribeHandler removes all of the authenticated user's devices, or
// one device by explicit endpoint.
func (h *Handler) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	// Body is optional for authenticated opt-out.
	_ = json.NewDecoder(r.Body).Decode(&req)

	var (
		deleted int
		err     error
	)
	switch {
	case req.Endpoint != "":
		deleted, err = h.Store.DeleteByEndpoint(r.Context(), req.Endpoint)
	case h.currentUserID(r) != "":
		deleted, err = h.Store.DeleteByUser(r.Context(), h.currentUserID(r))
	default:
		h.writeError(w, http.StatusUnauthorized, "endpoint or authenticated session required")
		return
	}
	if err != nil {
		h.Logger.Error("unsubscribe failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// callerSubscriptions resolves the caller's active devices, by session user
// or by an explicit endpoint for anonymous callers.
func (h *Handler) callerSubscriptions(r *http.Request, endpoint string) ([]models.Subscription, error) {
	if userID := h.currentUserID(r); userID != "" {
		return h.Store.ListActive(r.Context(), userID)
	}
	if endpoint == "" {
		return nil, nil
	}
	sub, err := h.Store.GetByEndpoint(r.Context(), endpoint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []models.Subscription{sub}, nil
}

// TestHandler fans a synthetic payload out to the caller's devices.
func (h *Handler) TestHandler(w http.ResponseWriter, r *http.Request) {
	h.sendTest(w, r, models.NotificationPayload{
		Title: "Test Notification",
		Body:  "Push notifications are working.",
		Tag:   "test",
		Data:  models.PayloadData{URL: "/settings", Timestamp: time.Now().Unix()},
	})
}

// TestPrayerHandler fans out a payload shaped exactly like a real prayer
// alert, audio cue included.
func (h *Handler) TestPrayerHandler(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Format("2006-01-02")
	payload := models.BuildPrayerPayload("fajr", models.KindMain, day, time.Now(), models.DefaultPreferences())
	payload.Title = "Test: " + payload.Title
	h.sendTest(w, r, payload)
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request, payload models.NotificationPayload) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	subs, err := h.callerSubscriptions(r, req.Endpoint)
	if err != nil {
		h.Logger.Error("listing caller subscriptions failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load subscriptions")
		return
	}
	if len(subs) == 0 {
		h.writeError(w, http.StatusNotFound, "no active subscriptions")
		return
	}

	res := h.Dispatcher.Send(r.Context(), subs, payload)
	h.writeJSON(w, http.StatusOK, map[string]int{"delivered": res.Delivered})
}

type snoozeRequest struct {
	OriginalPayload *models.NotificationPayload `json:"originalPayload"`
	Endpoint        string                      `json:"endpoint"`
	DelaySeconds    int                         `json:"delaySeconds"`
}

// SnoozeHandler delays re-delivery of an already-shown alert.
func (h *Handler) SnoozeHandler(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OriginalPayload == nil || req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "originalPayload and endpoint are required")
		return
	}

	delay := time.Duration(req.DelaySeconds) * time.Second
	if delay <= 0 {
		delay = snooze.DefaultDelay
	}

	if err := h.Snooze.Snooze(r.Context(), *req.OriginalPayload, req.Endpoint, delay); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "unknown endpoint")
			return
		}
		h.Logger.Error("snooze failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to schedule snooze")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"delaySeconds": int(delay / time.Second)})
}

// StatusHandler returns the caller's subscriptions, their stored
// preferences and today's computed times.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.callerSubscriptions(r, r.URL.Query().Get("endpoint"))
	if err != nil {
		h.Logger.Error("status lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load subscriptions")
		return
	}

	body := map[string]any{"subscriptions": subs}
	if len(subs) > 0 {
		body["preferences"] = subs[0].Preferences
		if times, err := h.Times.TimesFor(r.Context(), subs[0], time.Now()); err == nil {
			body["times"] = times
		}
	}
	h.writeJSON(w, http.StatusOK, body)
}
