package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/experiences-backend/api/responses"
	"github.com/angelmondragon/experiences-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

// ServiceAuth admits requests carrying a service token with the given scope
// and seeds the context with the calling service.
func ServiceAuth(cfg auth.ServiceTokenConfig, scope string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := auth.ParseServiceToken(cfg, token, scope)
			if err != nil {
				code := pkgerrors.CodeUnauthorized
				if errors.Is(err, auth.ErrScopeDenied) {
					code = pkgerrors.CodeForbidden
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(code, err, "invalid service token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxSubject, claims.Subject)
			ctx = context.WithValue(ctx, ctxScope, claims.Scope)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"service_subject": claims.Subject,
					"service_scope":   claims.Scope,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
