package handlers

import "net/http"

const sessionName = "portal-session"

// currentUserID returns the caller's user id from the session cookie, or
// the empty string for anonymous callers. Session identity is written by
// the external auth service; this service only reads it.
func (h *Handler) currentUserID(r *http.Request) string {
	session, _ := h.sessions.Get(r, sessionName)
	userID, _ := session.Values["user_id"].(string)
	return userID
}
