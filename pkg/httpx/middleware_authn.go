package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// AuthnMiddleware requires a bearer token accepted by v. The verifier owns
// signature, issuer, expiry and token-use checks.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, raw, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return slogx.With(ctx, "user_id", c.Subject)
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "invalid_token", ErrorDescription: desc})
}
