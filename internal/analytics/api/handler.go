package analytics_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/analytics"
	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

// Handler serves the organizer analytics endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes mounts the routes. Callers put auth.Required in front of them.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events/{eventId}/summary", h.GetEventSummary)
	r.Get("/api/events/{eventId}/registrations", h.ListRegistrations)
}

func (h *Handler) GetEventSummary(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if !h.authorized(w, r, eventID) {
		return
	}

	summary, err := h.Service.GetEventSummary(r.Context(), eventID)
	if err != nil {
		h.fail(w, eventID, err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event summary retrieved", summary))
}

// ListRegistrations supports ?tier_id, ?attendance, ?sort_by, ?sort_desc, ?limit and ?offset.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if !h.authorized(w, r, eventID) {
		return
	}

	query := r.URL.Query()
	options := analytics.RegistrationListOptions{
		TierID:     query.Get("tier_id"),
		Attendance: models.AttendanceStatus(query.Get("attendance")),
		SortBy:     query.Get("sort_by"),
		SortDesc:   query.Get("sort_desc") == "true",
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid limit", "limit must be a non-negative integer"))
			return
		}
		options.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid offset", "offset must be a non-negative integer"))
			return
		}
		options.Offset = offset
	}

	rows, err := h.Service.ListRegistrations(r.Context(), eventID, options)
	if err != nil {
		h.fail(w, eventID, err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registrations retrieved", rows))
}

func (h *Handler) authorized(w http.ResponseWriter, r *http.Request, eventID string) bool {
	if auth.UserID(r.Context()) == "" {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("Anonymous request for event %s analytics", eventID))
		_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized access", "unauthorized"))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, eventID string, err error) {
	if errors.Is(err, analytics.ErrEventNotFound) {
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Event not found", "not_found"))
		return
	}
	h.Logger.Error("ANALYTICS", fmt.Sprintf("Analytics for event %s failed: %v", eventID, err))
	_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load analytics", "internal error"))
}
