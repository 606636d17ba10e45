package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/prayer"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/snooze"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

type Handler struct {
	Store          store.SubscriptionStore
	Times          *prayer.Service
	Dispatcher     *dispatch.Dispatcher
	Snooze         *snooze.Manager
	Events         *store.RedisStore
	Logger         *zap.Logger
	VAPIDPublicKey string

	sessions *sessions.CookieStore
}

func NewHandler(subs store.SubscriptionStore, times *prayer.Service, dispatcher *dispatch.Dispatcher,
	snoozer *snooze.Manager, events *store.RedisStore, vapidPublicKey, sessionSecret string,
	logger *zap.Logger) *Handler {
	return &Handler{
		Store:          subs,
		Times:          times,
		Dispatcher:     dispatcher,
		Snooze:         snoozer,
		Events:         events,
		Logger:         logger,
		VAPIDPublicKey: vapidPublicKey,
		sessions:       sessions.NewCookieStore([]byte(sessionSecret)),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("response encode failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// HealthzHandler reports liveness.
func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
