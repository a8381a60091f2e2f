package auth

import (
	"context"
	"errors"
	"net/http"

	"ms-registration/internal/logger"
	"ms-registration/internal/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Optional lets anonymous requests through but rejects a bad token. A valid
// token puts its subject into the request context.
func Optional(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return middleware(v, log, false)
}

// Required rejects requests without a valid bearer token.
func Required(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return middleware(v, log, true)
}

func middleware(v Verifier, log *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if errors.Is(err, ErrNoToken) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
				return
			}

			sub, err := v.Subject(r.Context(), raw)
			if err != nil {
				log.LogSecurity("AUTH", "Rejected bearer token: "+err.Error())
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sub)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
