package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/angelmondragon/receipts-backend/api/responses"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

// AdminKeyHeader carries the administrative credential.
const AdminKeyHeader = "x-admin-key"

type adminCtxKey struct{}

// IsAdmin reports whether the request presented a valid admin credential.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminCtxKey{}).(bool)
	return v
}

func adminAuthorized(r *http.Request, cfg config.AdminConfig) bool {
	if cfg.Key == "" {
		// only the explicit dev flag opens unauthenticated admin access
		return cfg.AllowUnauthenticated
	}
	presented := r.Header.Get(AdminKeyHeader)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.Key)) == 1
}

// AdminOnly rejects requests without a valid admin credential.
func AdminOnly(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !adminAuthorized(r, cfg) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin credentials required"))
				return
			}
			if cfg.Key == "" && logg != nil {
				logg.Warn(r.Context(), "admin request allowed without credentials (RECEIPTS_ALLOW_UNAUTHENTICATED_ADMIN)")
			}
			ctx := context.WithValue(r.Context(), adminCtxKey{}, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminProbe marks the request as admin when the credential is valid but never
// rejects; routes with alternative auth (download tokens) use it.
func AdminProbe(cfg config.AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Key != "" && adminAuthorized(r, cfg) {
				ctx := context.WithValue(r.Context(), adminCtxKey{}, true)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
