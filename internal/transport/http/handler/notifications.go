package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub-notify/internal/application/notification"
	"github.com/learnhub-notify/internal/domain"
	"github.com/learnhub-notify/internal/transport/http/middleware"
)

// NotificationHandler handles the notification API endpoints.
type NotificationHandler struct {
	svc    notification.Service
	logger *slog.Logger
}

func NewNotificationHandler(svc notification.Service, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{svc: svc, logger: logger}
}

// Send accepts a single notification request. The response carries the
// persisted PENDING row; delivery happens after this request returns.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Ordinary callers may only notify themselves; admins may target anyone.
	if claims.Role != domain.RoleAdmin && req.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "cannot send notifications to another user")
		return
	}
	n, err := h.svc.Send(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, "notification accepted for delivery", n)
}

// SendBulk fans one template out to many recipients, best effort per
// recipient. It answers only after every per-recipient pipeline finished.
func (h *NotificationHandler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := h.svc.SendBulk(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "bulk send completed", results)
}

// List returns the caller's own feed, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.listFeed(w, r, claims.UserID)
}

// ListForUser returns any user's feed; admin only (enforced by the router).
func (h *NotificationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	h.listFeed(w, r, chi.URLParam(r, "id"))
}

func (h *NotificationHandler) listFeed(w http.ResponseWriter, r *http.Request, userID string) {
	page, size := parsePagination(r)
	items, err := h.svc.ListForUser(r.Context(), userID, page, size)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", PaginatedData{Items: items, Page: page, Size: size})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]int{"count": count})
}

// MarkRead flips the caller's notifications to read and reports how many rows
// actually changed. Ids the caller does not own, or rows already read, are
// skipped silently.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NotificationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "notification_ids required")
		return
	}
	updated, err := h.svc.MarkRead(r.Context(), claims.UserID, req.NotificationIDs)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]int{"updated": updated})
}

// Retry kicks off a retry pass for failed notifications; admin only,
// fire-and-forget.
func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := h.svc.RetryFailed(context.WithoutCancel(r.Context())); err != nil {
			h.logger.Error("manual retry pass failed", "err", err)
		}
	}()
	writeSuccess(w, http.StatusAccepted, "retry started", nil)
}
