package httpx

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
)

// ClaimsFromContext returns the verified access-token claims placed by
// AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxKeyUserID).(string)
	return id
}

func permissionsFromCtx(ctx context.Context) []string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Permissions
	}
	return nil
}
