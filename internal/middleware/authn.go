package middleware

import (
	"net/http"
	"strings"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/logging"
)

// TokenVerifier decodes a bearer token into the identity it was issued for.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthRecorder counts authentication outcomes.
type AuthRecorder interface {
	RecordAuth(outcome string)
}

// Authenticate requires a valid bearer token. A missing or malformed
// Authorization header yields 401; a token that fails verification, expired
// or otherwise, yields 403. On success the identity is attached to the
// request context and the request logger gains the user id.
func Authenticate(verifier TokenVerifier, recorder AuthRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				record(recorder, "unauthenticated")
				api.Fail(ctx, w, api.KindUnauthenticated, "authorization header is required")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(ctx).Warn("token verification failed", "error", err)
				record(recorder, "token_invalid")
				api.Fail(ctx, w, api.KindTokenInvalid, "invalid or expired token")
				return
			}

			ctx = auth.WithIdentity(ctx, identity)
			ctx = logging.With(ctx, "user_id", identity.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only requests whose authenticated identity holds role.
// It must run after Authenticate.
func RequireRole(role string, recorder AuthRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok || identity.Role != role {
				record(recorder, "forbidden")
				api.Fail(r.Context(), w, api.KindForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func record(recorder AuthRecorder, outcome string) {
	if recorder != nil {
		recorder.RecordAuth(outcome)
	}
}
