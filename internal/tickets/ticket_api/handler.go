package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/metrics"
	tickets "ms-registration/internal/tickets/service"
	"ms-registration/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, m *metrics.Metrics, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Metrics: m, Logger: log}
}

// RegisterRoutes mounts the public ticket routes. scanner guards check-in.
func (h *Handler) RegisterRoutes(r chi.Router, scanner func(http.Handler) http.Handler) {
	r.Get("/api/registrations/{registrationId}/ticket", h.GetTicketQR)
	r.Get("/api/events/{eventId}/attendance", h.GetAttendance)
	r.With(scanner).Post("/api/checkin", h.CheckinTicket)
}

// GetTicketQR serves the ticket PNG to its owner: the logged-in user who
// registered, or anyone presenting the attendance token.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	reg, err := h.TicketService.Get(r.Context(), id)
	if errors.Is(err, tickets.ErrTicketNotFound) {
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", err.Error()))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Ticket lookup failed for %s: %v", id, err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load ticket", "internal error"))
		return
	}

	owner := reg.UserID != "" && auth.UserID(r.Context()) == reg.UserID
	if !owner && r.URL.Query().Get("token") != reg.Token {
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", "ticket not found"))
		return
	}

	png, err := h.TicketService.Render(reg)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("QR render failed for %s: %v", id, err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not render ticket", "internal error"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// CheckinTicket handles a scan.
// Expected POST request body: {"encrypted_qr": "<sealed payload>"}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil || requestBody.EncryptedQR == "" {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "encrypted_qr is required"))
		return
	}

	reg, err := h.TicketService.CheckInSealed(r.Context(), requestBody.EncryptedQR)
	switch {
	case err == nil:
		h.Metrics.CheckIn("ok", "http")
		h.Logger.LogSecurity("CHECKIN", fmt.Sprintf("Scanner %s checked in %s", auth.UserID(r.Context()), reg.ID))
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Check-in successful", reg.Result()))
	case errors.Is(err, tickets.ErrAlreadyCheckedIn):
		h.Metrics.CheckIn("duplicate", "http")
		_ = utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Ticket already used", err.Error()))
	case errors.Is(err, tickets.ErrInvalidTicket):
		h.Metrics.CheckIn("invalid", "http")
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid ticket", err.Error()))
	case errors.Is(err, tickets.ErrTicketNotFound):
		h.Metrics.CheckIn("not_found", "http")
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", err.Error()))
	default:
		h.Metrics.CheckIn("error", "http")
		h.Logger.Error("CHECKIN", fmt.Sprintf("Check-in failed: %v", err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Check-in failed", "internal error"))
	}
}

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	count, err := h.TicketService.Attendance(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Attendance count failed for %s: %v", eventID, err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Error retrieving attendance", "internal error"))
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Attendance retrieved", count))
}
