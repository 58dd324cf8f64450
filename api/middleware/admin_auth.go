package middleware

import (
	"net/http"
	"strings"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	pkgauth "github.com/baselhussain/ketoplan-backend/pkg/auth"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

// AdminAuth validates a bearer token and seeds the request context with the
// operator identity.
func AdminAuth(cfg config.AdminJWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
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

			claims, err := pkgauth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.Subject == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}

			ctx := WithAdminSubject(r.Context(), claims.Subject)
			if logg != nil {
				ctx = logg.WithField(ctx, "admin_subject", claims.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
