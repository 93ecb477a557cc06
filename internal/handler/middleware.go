package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const callerIDKey contextKey = "callerID"

// JWTAuthMiddleware validates HS256 Bearer tokens issued by the portal's
// auth provider and injects the token subject into the context.
func JWTAuthMiddleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			var claims jwt.RegisteredClaims
			_, err := parser.ParseWithClaims(parts[1], &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil || claims.Subject == "" {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerIDFromContext extracts the authenticated caller id from context.
func CallerIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerIDKey).(string)
	return v
}

// rateLimitKey buckets callers by token subject, or by address when
// authentication is disabled.
func rateLimitKey(r *http.Request) string {
	if id := CallerIDFromContext(r.Context()); id != "" {
		return "caller:" + id
	}
	return "addr:" + r.RemoteAddr
}
