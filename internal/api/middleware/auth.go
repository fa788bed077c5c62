package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/otahub/otahub/internal/api/response"
	"github.com/otahub/otahub/internal/auth"
)

const tokenPrefixLen = 8

// Auth gates control-plane routes behind remote token validation.
type Auth struct {
	validator auth.Validator
}

// NewAuth creates the auth middleware around a token validator.
func NewAuth(v auth.Validator) *Auth {
	return &Auth{validator: v}
}

// Authenticate extracts the bearer token and validates it against the
// authorization service on every request; there is no result caching because
// tokens are short-lived. On success the token prefix is stashed in the
// request context for the rate limiter.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header")
			return
		}

		if err := a.validator.Validate(r.Context(), token); err != nil {
			switch {
			case errors.Is(err, auth.ErrForbidden):
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Token not permitted for this service")
			case errors.Is(err, auth.ErrUpstreamUnavailable):
				response.Error(w, http.StatusBadGateway,
					"AUTH_UNAVAILABLE", "Authorization service unavailable")
			default:
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Token validation failed")
			}
			return
		}

		prefix := token
		if len(prefix) > tokenPrefixLen {
			prefix = prefix[:tokenPrefixLen]
		}
		r = r.WithContext(setTokenPrefix(r.Context(), prefix))

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
