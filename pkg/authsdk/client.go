package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient calls the public endpoints of the gatehouse service and creates
// authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckPermissions makes a Session refuse calls its access token has no
	// permission for, before any request is sent. The server checks again
	// regardless. Default: true
	CheckPermissions bool
}

// NewSDKClient creates a client with permission checking enabled.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		CheckPermissions: true,
	}
}

// Login submits an identity provider ID token. On success an OTP has been
// emailed to the user.
func (c *SDKClient) Login(ctx context.Context, idToken string) (*LoginResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/login", LoginRequest{IDToken: idToken})
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA exchanges the emailed code for a token pair.
func (c *SDKClient) VerifyMFA(ctx context.Context, userID, code string) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/mfa/verify", VerifyMFARequest{UserID: userID, Code: code})
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate completes the OTP step and returns a Session.
func (c *SDKClient) Authenticate(ctx context.Context, userID, code string) (*Session, error) {
	tokens, err := c.VerifyMFA(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// AuthenticateWithRefreshToken creates a session from a stored refresh token.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere. The session still
// refreshes when the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int64) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}
