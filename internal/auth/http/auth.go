package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// AuthHandler serves the login, MFA verification and refresh endpoints.
type AuthHandler struct {
	Flow *service.AuthFlow
}

// HandleLogin godoc
//
//	@Summary		Start login
//	@Description	Verifies an identity provider ID token and emails a one-time code to the account address.
//	@Description	Any earlier unused code for the same user stops working.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"ID token"
//	@Success		200		{object}	authsdk.LoginResponse	"user_id, email, mfa_required"
//	@Failure		400		{object}	httpx.ErrorBody			"Malformed body"
//	@Failure		401		{object}	httpx.ErrorBody			"invalid_credential"
//	@Failure		429		{object}	httpx.ErrorBody			"rate_limited"
//	@Failure		503		{object}	httpx.ErrorBody			"OTP could not be stored or delivered"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		authsdk.ErrInvalidRequest.WithDescription("id_token is required").WriteError(w)
		return
	}

	res, err := h.Flow.Login(r.Context(), req.IDToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		UserID:      res.UserID,
		Email:       res.Email,
		MFARequired: res.MFARequired,
	})
}

// HandleVerifyMFA godoc
//
//	@Summary		Verify one-time code
//	@Description	Redeems the emailed code for an access and refresh token pair. A code can be redeemed once.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyMFARequest	true	"User and code"
//	@Success		200		{object}	authsdk.TokenResponse		"access_token, refresh_token, token_type, expires_in"
//	@Failure		400		{object}	httpx.ErrorBody				"Malformed body"
//	@Failure		401		{object}	httpx.ErrorBody				"mfa_failed: invalid or expired OTP"
//	@Failure		429		{object}	httpx.ErrorBody				"rate_limited"
//	@Failure		503		{object}	httpx.ErrorBody				"temporarily_unavailable"
//	@Header			200		{string}	Cache-Control				"no-store"
//	@Router			/v1/auth/mfa/verify [post].
func (h *AuthHandler) HandleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyMFARequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		authsdk.ErrInvalidRequest.WithDescription("user_id and code are required").WriteError(w)
		return
	}

	tokens, err := h.Flow.VerifyMFA(r.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// HandleRefresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a refresh token for a new pair with freshly resolved roles and permissions.
//	@Description	The presented refresh token remains valid until it expires.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse	"access_token, refresh_token, token_type, expires_in"
//	@Failure		400		{object}	httpx.ErrorBody			"Malformed body"
//	@Failure		401		{object}	httpx.ErrorBody			"invalid_token"
//	@Failure		503		{object}	httpx.ErrorBody			"temporarily_unavailable"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		authsdk.ErrInvalidRequest.WithDescription("refresh_token is required").WriteError(w)
		return
	}

	tokens, err := h.Flow.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresIn:    tokens.ExpiresIn,
	})
}
