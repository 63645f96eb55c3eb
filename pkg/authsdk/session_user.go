package authsdk

import (
	"context"
	"net/http"
)

// Me returns the caller's identity and rights as carried in the access token.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var me MeResponse
	if err := decodeJSON(resp, &me, http.StatusOK); err != nil {
		return nil, err
	}
	return &me, nil
}
