package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Rilosupriyatno/microts/internal/model"
	"github.com/Rilosupriyatno/microts/internal/service"
	"github.com/Rilosupriyatno/microts/pkg/apierror"
)

type AlertHandler struct {
	service *service.AlertService
}

func NewAlertHandler(service *service.AlertService) *AlertHandler {
	return &AlertHandler{service: service}
}

// Webhook receives Alertmanager-style notifications.
func (h *AlertHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.AlertmanagerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	records := h.service.Process(r.Context(), payload)
	writeSuccess(w, http.StatusOK, map[string]any{"received": len(records)})
}

func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, apierror.New(apierror.CodeBadRequest, "limit must be a positive integer", "limit", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	writeSuccess(w, http.StatusOK, h.service.History(limit))
}

func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Stats())
}
