package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

const (
	PermissionIAMRead  = "iam:read"
	PermissionIAMWrite = "iam:write"
)

// ListRoles requires iam:read.
func (s *Session) ListRoles(ctx context.Context) (*ListRolesResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/iam/roles", nil, nil, PermissionIAMRead)
	if err != nil {
		return nil, err
	}

	var out ListRolesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRole requires iam:write.
func (s *Session) CreateRole(ctx context.Context, name string) (*RoleInfo, error) {
	var out RoleInfo
	if err := s.postIAM(ctx, "/v1/iam/roles", CreateRoleRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePermission requires iam:write.
func (s *Session) CreatePermission(ctx context.Context, name string) (*PermissionInfo, error) {
	var out PermissionInfo
	if err := s.postIAM(ctx, "/v1/iam/permissions", CreatePermissionRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GrantPermission attaches permission to role. Requires iam:write.
func (s *Session) GrantPermission(ctx context.Context, role, permission string) error {
	return s.postIAM(ctx, "/v1/iam/roles/"+url.PathEscape(role)+"/permissions",
		GrantPermissionRequest{Permission: permission}, nil)
}

// AssignRole gives userID the role. Requires iam:write.
func (s *Session) AssignRole(ctx context.Context, userID, role string) error {
	return s.postIAM(ctx, "/v1/iam/users/"+url.PathEscape(userID)+"/roles",
		AssignRoleRequest{Role: role}, nil)
}

// UserRoles requires iam:read.
func (s *Session) UserRoles(ctx context.Context, userID string) (*UserRolesResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet,
		"/v1/iam/users/"+url.PathEscape(userID)+"/roles", nil, nil, PermissionIAMRead)
	if err != nil {
		return nil, err
	}

	var out UserRolesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserPermissions requires iam:read.
func (s *Session) UserPermissions(ctx context.Context, userID string) (*UserPermissionsResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet,
		"/v1/iam/users/"+url.PathEscape(userID)+"/permissions", nil, nil, PermissionIAMRead)
	if err != nil {
		return nil, err
	}

	var out UserPermissionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// postIAM sends an iam:write request. A nil out expects 204 No Content,
// otherwise 201 with a JSON body.
func (s *Session) postIAM(ctx context.Context, path string, in, out any) error {
	body, err := jsonBody(in)
	if err != nil {
		return err
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, body, jsonHeaders, PermissionIAMWrite)
	if err != nil {
		return err
	}
	if out == nil {
		return checkStatusNoContent(resp)
	}
	return decodeJSON(resp, out, http.StatusCreated)
}
