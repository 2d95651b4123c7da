package handler

import (
	"encoding/json"
	"net/http"

	"github.com/learnhub-notify/internal/application/device"
	"github.com/learnhub-notify/internal/domain"
	"github.com/learnhub-notify/internal/transport/http/middleware"
)

// DeviceTokenHandler handles push-token registry endpoints.
type DeviceTokenHandler struct {
	svc device.Service
}

func NewDeviceTokenHandler(svc device.Service) *DeviceTokenHandler {
	return &DeviceTokenHandler{svc: svc}
}

func (h *DeviceTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterDeviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Register(r.Context(), claims.UserID, req); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "device token registered", nil)
}

func (h *DeviceTokenHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tokens, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", tokens)
}
