package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/coatings-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	salesRepHeader  = "X-Sales-Rep"
	requestIDHeader = "X-Request-Id"
	defaultActor    = "system"
)

// ActorMiddleware identifies the caller and injects the actor into context.
// A bearer token, when present, must be valid; its subject becomes the actor.
// Without a token the request is rejected if required, otherwise the
// X-Sales-Rep header (or "system") is used.
func ActorMiddleware(verifier *service.TokenVerifier, required bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ""
			authHeader := r.Header.Get("Authorization")

			switch {
			case authHeader != "" && verifier != nil:
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					logger.Warn("auth: invalid token format",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
					)
					writeError(w, http.StatusUnauthorized, "invalid authorization header")
					return
				}
				claims, err := verifier.ValidateAccessToken(parts[1])
				if err != nil {
					logger.Warn("auth: invalid or expired token",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Error(err),
					)
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				actor = claims.Sub
			case required:
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			default:
				actor = strings.TrimSpace(r.Header.Get(salesRepHeader))
			}

			if actor == "" {
				actor = defaultActor
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext extracts the caller identity from context.
func ActorFromContext(ctx context.Context) string {
	if v, _ := ctx.Value(actorKey).(string); v != "" {
		return v
	}
	return defaultActor
}

// RequestIDHeader echoes chi's request id back to the client.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
