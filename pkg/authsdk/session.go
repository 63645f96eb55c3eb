package authsdk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// refreshSkew renews the access token this long before it expires.
const refreshSkew = 30 * time.Second

// Session is an authenticated session with automatic token refresh. It is
// safe for concurrent use.
type Session struct {
	client *SDKClient
	now    func() time.Time

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	permissions  []string
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client, now: time.Now}
	s.store(tokens)
	return s
}

// store replaces the session tokens. Callers hold mu or own s exclusively.
func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = s.now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew)
	s.permissions = permissionsOf(tokens.AccessToken)
}

// permissionsOf reads the permissions claim without verifying the token.
// It only feeds client-side checks; the server verifies every request.
func permissionsOf(token string) []string {
	var c jwtx.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil
	}
	return c.Permissions
}

// getValidToken returns a live access token, refreshing if it has expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if s.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", errors.New("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokens)

	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Permissions returns a copy of the permissions in the current access token.
func (s *Session) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permissions)
}

// HasPermission reports whether the current access token grants name.
func (s *Session) HasPermission(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.permissions, name)
}

func (s *Session) checkPermissions(required ...string) error {
	if !s.client.CheckPermissions || len(required) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, p := range required {
		if !slices.Contains(s.permissions, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return ErrInsufficientPermission.WithDescription("missing permission(s): " + strings.Join(missing, ", "))
	}
	return nil
}
