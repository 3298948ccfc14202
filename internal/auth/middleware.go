package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/requestctx"
)

// RequireToken rejects requests without a valid bearer token. Browsers
// cannot set headers on websocket upgrades, so an access_token query
// parameter is accepted as well.
func RequireToken(svc *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}

			if token == "" {
				unauthorized(w, "Authentication required", "UNAUTHORIZED")
				return
			}

			claims, err := svc.Validate(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected API token")
				if errors.Is(err, ErrExpiredToken) {
					unauthorized(w, "Token has expired", "TOKEN_EXPIRED")
					return
				}
				unauthorized(w, "Invalid token", "INVALID_TOKEN")
				return
			}

			ctx := requestctx.WithSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
