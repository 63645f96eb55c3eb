package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// MeHandler echoes the caller's verified access-token claims.
//
//	@Summary		Current user
//	@Description	Returns the identity, roles and permissions carried in the caller's access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MeResponse	"user_id, email, roles, permissions, expires_at"
//	@Failure		401	{object}	httpx.ErrorBody		"Invalid or missing access token"
//	@Router			/v1/auth/me [get].
func MeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	resp := authsdk.MeResponse{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Roles:       orEmpty(claims.Roles),
		Permissions: orEmpty(claims.Permissions),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
