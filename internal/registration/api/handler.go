package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/metrics"
	"ms-registration/internal/models"
	"ms-registration/internal/rabbit"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/gate"
	"ms-registration/internal/registration/validation"
	"ms-registration/internal/sse"
	"ms-registration/internal/utils"
)

// Gate is the challenge/pass protocol of the verification step.
type Gate interface {
	Present(ctx context.Context) (*gate.Challenge, error)
	Attempt(ctx context.Context, challengeID string, x int) (string, error)
	Dismiss(ctx context.Context, challengeID string) error
	Redeem(ctx context.Context, pass string) error
}

type EventPublisher interface {
	PublishRegistrationCreated(ctx context.Context, reg *models.Registration) error
}

type DeliveryQueue interface {
	Enqueue(ctx context.Context, job rabbit.DeliveryJob) error
}

type TicketSealer interface {
	Seal(reg *models.Registration) (string, error)
}

type Handler struct {
	Service  *registration.Service
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Emitter  *sse.AvailabilityEmitter
	Sealer   TicketSealer
	Gate     Gate           // nil disables the verification step
	Events   EventPublisher // optional
	Delivery DeliveryQueue  // optional

	// async runs post-commit side effects; tests make it synchronous
	async func(func())
}

func NewHandler(service *registration.Service, log *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
		Emitter: sse.NewAvailabilityEmitter(),
		async:   func(f func()) { go f() },
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/events/{eventId}/registrations", h.Submit)
	r.Get("/api/events/{eventId}/registrations/lookup", h.Lookup)
	r.Get("/api/events/{eventId}/availability", h.Availability)
	r.Get("/api/events/{eventId}/availability/stream", h.AvailabilityStream)
	if h.Gate != nil {
		r.Post("/api/challenges", h.PresentChallenge)
		r.Post("/api/challenges/{challengeId}/attempt", h.AttemptChallenge)
		r.Delete("/api/challenges/{challengeId}", h.DismissChallenge)
	}
}

// Submit handles POST /api/events/{eventId}/registrations. The user id is
// taken from the bearer token, never from the body.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.Metrics.Submission(metrics.OutcomeInvalid, started)
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	sub.EventID = chi.URLParam(r, "eventId")
	sub.Identity.UserID = auth.UserID(r.Context())

	// a form error must not burn the verification pass
	if fields := validation.Validate(sub); fields != nil {
		h.fail(w, &registration.ValidationError{Fields: fields}, started)
		return
	}
	if err := h.redeem(r.Context(), sub.VerificationPass); err != nil {
		h.fail(w, err, started)
		return
	}

	reg, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		h.fail(w, err, started)
		return
	}

	h.Metrics.Submission(metrics.OutcomeCreated, started)
	h.Metrics.Seats(reg.EventID, reg.TierID, reg.Quantity)
	h.afterCreate(r.Context(), reg)

	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Registration created", reg.Result()))
}

func (h *Handler) redeem(ctx context.Context, pass string) error {
	if h.Gate == nil {
		return nil
	}
	if err := h.Gate.Redeem(ctx, pass); err != nil {
		if errors.Is(err, gate.ErrVerificationFailed) {
			return registration.ErrVerificationFailed
		}
		return &registration.PersistenceError{Op: "redeem verification pass", Err: err}
	}
	return nil
}

// afterCreate publishes the registration and pushes fresh availability. None
// of it can undo the registration, so failures are only logged.
func (h *Handler) afterCreate(ctx context.Context, reg *models.Registration) {
	ctx = context.WithoutCancel(ctx)
	run := h.async
	if run == nil {
		run = func(f func()) { go f() }
	}
	run(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if h.Events != nil {
			if err := h.Events.PublishRegistrationCreated(ctx, reg); err != nil {
				h.Logger.Error("KAFKA", fmt.Sprintf("registration.created for %s not published: %v", reg.ID, err))
			}
		}

		if h.Delivery != nil && h.Sealer != nil {
			sealed, err := h.Sealer.Seal(reg)
			if err == nil {
				err = h.Delivery.Enqueue(ctx, rabbit.NewDeliveryJob(reg, sealed))
			}
			if err != nil {
				h.Logger.Error("RABBIT", fmt.Sprintf("Delivery for %s not queued: %v", reg.ID, err))
			}
		}

		if h.Emitter != nil && h.Emitter.ClientCount(reg.EventID) > 0 {
			tiers, err := h.Service.Availability(ctx, reg.EventID)
			if err != nil {
				h.Logger.Warn("API", fmt.Sprintf("Availability refresh for %s failed: %v", reg.EventID, err))
				return
			}
			h.Emitter.Emit(sse.AvailabilityUpdate{EventID: reg.EventID, Tiers: tiers, At: time.Now().UTC()})
		}
	})
}

// Lookup returns the caller's existing registration for token recovery. A
// logged-in user is matched by id; an anonymous caller must give an email and
// pass the verification gate.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	// A signed-in caller only sees their own registration; ?email is honored
	// for anonymous callers who hold a verification pass.
	identity := models.Identity{UserID: auth.UserID(r.Context())}
	if identity.UserID == "" {
		identity.Email = r.URL.Query().Get("email")
		if !validation.IsEmail(identity.Email) {
			h.fail(w, &registration.ValidationError{Fields: map[string]string{"email": validation.ReasonEmail}}, time.Time{})
			return
		}
		if err := h.redeem(r.Context(), r.URL.Query().Get("verification_pass")); err != nil {
			h.fail(w, err, time.Time{})
			return
		}
	}

	reg, err := h.Service.Lookup(r.Context(), chi.URLParam(r, "eventId"), identity)
	if err != nil {
		h.fail(w, err, time.Time{})
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration found", reg.Result()))
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Service.Availability(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, err, time.Time{})
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Availability retrieved", tiers))
}

func (h *Handler) AvailabilityStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	tiers, err := h.Service.Availability(r.Context(), eventID)
	if err != nil {
		h.fail(w, err, time.Time{})
		return
	}

	initial := sse.AvailabilityUpdate{EventID: eventID, Tiers: tiers, At: time.Now().UTC()}
	if err := h.Emitter.Stream(w, r, initial, 25*time.Second); err != nil {
		h.Logger.Debug("API", fmt.Sprintf("Availability stream for %s ended: %v", eventID, err))
	}
}

func (h *Handler) PresentChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := h.Gate.Present(r.Context())
	if err != nil {
		h.Logger.Error("GATE", fmt.Sprintf("Present failed: %v", err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not create challenge", "internal error"))
		return
	}
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Challenge created", ch))
}

func (h *Handler) AttemptChallenge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		X *int `json:"x"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.X == nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "x is required"))
		return
	}

	pass, err := h.Gate.Attempt(r.Context(), chi.URLParam(r, "challengeId"), *body.X)
	switch {
	case err == nil:
		h.Metrics.Gate("solved")
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Verification passed", map[string]string{"verification_pass": pass}))
	case errors.Is(err, gate.ErrVerificationFailed):
		h.Metrics.Gate("failed")
		_ = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Verification failed, try again", "verification_failed"))
	case errors.Is(err, gate.ErrChallengeNotFound):
		h.Metrics.Gate("expired")
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Challenge expired", "not_found"))
	default:
		h.Logger.Error("GATE", fmt.Sprintf("Attempt failed: %v", err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Verification unavailable", "internal error"))
	}
}

func (h *Handler) DismissChallenge(w http.ResponseWriter, r *http.Request) {
	if err := h.Gate.Dismiss(r.Context(), chi.URLParam(r, "challengeId")); err != nil {
		h.Logger.Error("GATE", fmt.Sprintf("Dismiss failed: %v", err))
	}
	h.Metrics.Gate("dismissed")
	w.WriteHeader(http.StatusNoContent)
}

// fail writes the typed error as JSON. started is zero for requests that
// are not submissions.
func (h *Handler) fail(w http.ResponseWriter, err error, started time.Time) {
	status, outcome, resp := h.errorResponse(err)
	if !started.IsZero() {
		h.Metrics.Submission(outcome, started)
	}
	_ = utils.WriteJSON(w, status, resp)
}

func (h *Handler) errorResponse(err error) (int, string, utils.APIResponse) {
	var (
		verr *registration.ValidationError
		dup  *registration.DuplicateRegistrationError
	)
	switch {
	case errors.As(err, &verr):
		resp := utils.ErrorResponse("Please correct the highlighted fields", "validation_error")
		resp.Fields = verr.Fields
		return http.StatusUnprocessableEntity, metrics.OutcomeInvalid, resp
	case errors.Is(err, registration.ErrVerificationFailed):
		return http.StatusForbidden, metrics.OutcomeVerification,
			utils.ErrorResponse("Human verification is required", "verification_failed")
	case errors.As(err, &dup):
		resp := utils.ErrorResponse("You are already registered for this event", "duplicate_registration")
		resp.Token = dup.Token
		return http.StatusConflict, metrics.OutcomeDuplicate, resp
	case errors.Is(err, registration.ErrQuotaExceeded):
		return http.StatusConflict, metrics.OutcomeQuota,
			utils.ErrorResponse("Not enough seats left in this tier", "quota_exceeded")
	case errors.Is(err, registration.ErrEventNotFound):
		return http.StatusNotFound, metrics.OutcomeNotFound, utils.ErrorResponse("Event not found", "not_found")
	case errors.Is(err, registration.ErrRegistrationNotFound):
		return http.StatusNotFound, metrics.OutcomeNotFound, utils.ErrorResponse("Registration not found", "not_found")
	default:
		var perr *registration.PersistenceError
		if errors.As(err, &perr) {
			h.Logger.Error("REGISTRATION", fmt.Sprintf("%s failed: %v", perr.Op, perr.Err))
		} else {
			h.Logger.Error("REGISTRATION", fmt.Sprintf("Request failed: %v", err))
		}
		return http.StatusInternalServerError, metrics.OutcomeError,
			utils.ErrorResponse("Something went wrong, please try again", "persistence_error")
	}
}
