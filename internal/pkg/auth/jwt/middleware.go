package jwt

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/resp"
)

type contextKey string

// ContextUserIDKey stores the authenticated user id in the request context.
const ContextUserIDKey contextKey = "auth_user_id"

// TokenVerifier is satisfied by *Verifier.
type TokenVerifier interface {
	Verify(credential string) (uuid.UUID, error)
}

// BearerToken extracts the token from an `Authorization: Bearer <token>` header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireIdentity rejects requests without a valid bearer token (HTTP 401) and
// stores the authenticated user id in the context otherwise.
func RequireIdentity(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logx.Warn("Rejected bearer token", "error", err.Error(), "request_uri", r.RequestURI)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the authenticated user id set by RequireIdentity.
func GetUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(ContextUserIDKey).(uuid.UUID)
	return userID, ok
}
