package authsdk

import "time"

// LoginRequest starts authentication with an identity provider ID token.
type LoginRequest struct {
	IDToken string `json:"id_token"`
}

// LoginResponse reports the user the OTP was sent to.
type LoginResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	MFARequired bool   `json:"mfa_required"`
}

// VerifyMFARequest submits the emailed one-time code.
type VerifyMFARequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by MFA verification and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// MeResponse describes the caller as seen in their access token.
type MeResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ============================================================================
// IAM Types
// ============================================================================

type RoleInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ListRolesResponse struct {
	Roles []RoleInfo `json:"roles"`
}

type PermissionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRoleRequest struct {
	Name string `json:"name"`
}

type CreatePermissionRequest struct {
	Name string `json:"name"`
}

// GrantPermissionRequest attaches a permission to the role in the path.
type GrantPermissionRequest struct {
	Permission string `json:"permission"`
}

// AssignRoleRequest gives the user in the path a role.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

type UserRolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

type UserPermissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of each dependency, "ok" or "error: ...".
type HealthChecks struct {
	Database string `json:"database"`
	OTPStore string `json:"otp_store"`
}
