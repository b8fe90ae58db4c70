package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/response"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
)

// LiveSessions reports which device sessions have an open gateway client.
type LiveSessions interface {
	SessionIDs(userID string) []string
	CloseSession(ctx context.Context, userID, sessionID string) int
}

type MeHandler struct {
	sessions   repository.SessionRepository
	activities repository.ActivityRepository
	live       LiveSessions
	now        func() time.Time
}

func NewMeHandler(sessions repository.SessionRepository, activities repository.ActivityRepository, live LiveSessions) *MeHandler {
	return &MeHandler{
		sessions:   sessions,
		activities: activities,
		live:       live,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type sessionView struct {
	domain.Session
	Current bool `json:"current"`
}

func (h *MeHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	userID := claims.UserID()
	sessions, err := h.sessions.ListActiveByUserID(r.Context(), userID, h.now())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to list sessions", nil)
		return
	}
	live := h.live.SessionIDs(userID)
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{Session: s, Current: slices.Contains(live, s.ID)})
	}
	observability.Audit(r, "session.list", "user_id", userID, "count", len(views))
	response.JSON(w, r, http.StatusOK, views)
}

// RevokeSession signs one device out and closes any client still bound to it.
func (h *MeHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	userID := claims.UserID()
	sessionID := chi.URLParam(r, "session_id")
	changed, err := h.sessions.MarkInactiveForUser(r.Context(), userID, sessionID, h.now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "session not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to revoke session", nil)
		return
	}
	status := "already_inactive"
	if changed {
		status = "revoked"
	}
	closed := h.live.CloseSession(r.Context(), userID, sessionID)
	observability.Audit(r, "session.revoke", "user_id", userID, "session_id", sessionID, "status", status, "clients_closed", closed)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_id":     sessionID,
		"status":         status,
		"clients_closed": closed,
	})
}

func (h *MeHandler) Activities(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	q := r.URL.Query()
	query := repository.ActivityListQuery{
		UserID:    claims.UserID(),
		SessionID: q.Get("session_id"),
	}
	var details []fieldError
	if v := q.Get("activity_type"); v != "" {
		if !domain.ActivityType(v).Valid() {
			details = append(details, fieldError{Field: "activity_type", Rule: "activity_type"})
		}
		query.ActivityType = domain.ActivityType(v)
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &query.Page}, {"page_size", &query.PageSize}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, fieldError{Field: p.name, Rule: "gte", Param: "1"})
			continue
		}
		*p.dst = n
	}
	if len(details) > 0 {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid query", details)
		return
	}
	page, err := h.activities.ListPaged(r.Context(), query)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to list activities", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}
