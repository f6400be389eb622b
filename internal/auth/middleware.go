package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/shared"
)

// Middleware authenticates bearer tokens and stores the user in context.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate rejects requests without a valid bearer token.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}
		user, err := m.Service.Resolve(r.Context(), raw)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(shared.ContextWithUser(r.Context(), user)))
		case errors.Is(err, ErrInvalidToken):
			unauthorized(w)
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, httpx.ProblemDetail{Status: http.StatusNotFound, Code: "USER_NOT_FOUND", Message: "User not found"})
		default:
			if m.Logger != nil {
				m.Logger.Error("authenticate", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
		}
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httpx.RespondError(w, httpx.ErrUnauthorized)
}
