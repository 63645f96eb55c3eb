package httpx

import (
	"net/http"
	"strings"
)

// RequirePermission requires every listed permission in the caller's access
// token. It must run after AuthnMiddleware.
func RequirePermission(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := make(map[string]struct{})
			for _, p := range permissionsFromCtx(r.Context()) {
				have[p] = struct{}{}
			}

			for _, p := range required {
				if _, ok := have[p]; !ok {
					writePermissionError(w, required...)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission requires at least one of the listed permissions.
func RequireAnyPermission(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, p := range required {
		want[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range permissionsFromCtx(r.Context()) {
				if _, ok := want[p]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writePermissionError(w, required...)
		})
	}
}

func writePermissionError(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteJSON(w, http.StatusForbidden, ErrorBody{
		Error:            "insufficient_permission",
		ErrorDescription: "missing permission: " + strings.Join(required, " "),
	})
}
