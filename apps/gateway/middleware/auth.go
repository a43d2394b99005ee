package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/util"
)

// contextKey is a type for context keys.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "authenticated_user"

	// bearerScheme is the authentication scheme for Bearer tokens.
	bearerScheme = "bearer"
)

// AuthMiddleware creates an HTTP middleware that validates authentication tokens.
type AuthMiddleware struct {
	authenticator security.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authenticator security.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// bearerToken extracts the bearer token from the Authorization header.
// Returns an empty string when the header is missing or malformed.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware creates an HTTP middleware that requires a valid bearer token.
func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := util.Log(ctx)

		token := bearerToken(r)
		if token == "" {
			log.Debug("missing or malformed authorization header")
			am.unauthorized(w, "Missing or malformed authorization header. Expected: Bearer <token>")
			return
		}

		authCtx, err := am.authenticator.Authenticate(ctx, token)
		if err != nil {
			log.Debug("token validation failed", "error", err.Error())
			am.unauthorized(w, "Invalid or expired token")
			return
		}

		claims := security.ClaimsFromContext(authCtx)
		userID := ""
		if claims != nil {
			userID, _ = claims.GetSubject()
		}

		log.Debug("authenticated request",
			"user_id", userID,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// OptionalMiddleware attempts authentication but lets unauthenticated
// requests through. Handlers that accept an explicit identity field in the
// request body use this to prefer the authenticated subject when available.
func (am *AuthMiddleware) OptionalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := am.authenticator.Authenticate(ctx, token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// unauthorized writes an unauthorized response.
func (am *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="capability-governor"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}

// GetUserFromContext retrieves the authenticated user claims from context.
func GetUserFromContext(ctx context.Context) *security.AuthenticationClaims {
	return security.ClaimsFromContext(ctx)
}
