package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// IAMHandler administers roles, permissions and user assignments.
type IAMHandler struct {
	Rights *service.RightsService
}

// HandleListRoles godoc
//
//	@Summary		List roles
//	@Description	Returns every role ordered by name. Requires iam:read.
//	@Tags			IAM
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ListRolesResponse	"List of roles"
//	@Failure		401	{object}	httpx.ErrorBody				"Unauthorized - missing or invalid token"
//	@Failure		403	{object}	httpx.ErrorBody				"Forbidden - missing iam:read"
//	@Router			/v1/iam/roles [get].
func (h *IAMHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Rights.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.ListRolesResponse{Roles: make([]authsdk.RoleInfo, len(roles))}
	for i, role := range roles {
		resp.Roles[i] = authsdk.RoleInfo{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleCreateRole godoc
//
//	@Summary		Create role
//	@Tags			IAM
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateRoleRequest	true	"Role name"
//	@Success		201		{object}	authsdk.RoleInfo
//	@Failure		400		{object}	httpx.ErrorBody	"Blank name"
//	@Failure		403		{object}	httpx.ErrorBody	"Forbidden - missing iam:write"
//	@Failure		409		{object}	httpx.ErrorBody	"Role exists"
//	@Router			/v1/iam/roles [post].
func (h *IAMHandler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	role, err := h.Rights.CreateRole(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.RoleInfo{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt})
}

// HandleCreatePermission godoc
//
//	@Summary		Create permission
//	@Tags			IAM
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreatePermissionRequest	true	"Permission name"
//	@Success		201		{object}	authsdk.PermissionInfo
//	@Failure		400		{object}	httpx.ErrorBody	"Blank name"
//	@Failure		403		{object}	httpx.ErrorBody	"Forbidden - missing iam:write"
//	@Failure		409		{object}	httpx.ErrorBody	"Permission exists"
//	@Router			/v1/iam/permissions [post].
func (h *IAMHandler) HandleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	p, err := h.Rights.CreatePermission(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.PermissionInfo{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
}

// HandleGrantPermission godoc
//
//	@Summary		Grant permission to role
//	@Description	Idempotent. Requires iam:write.
//	@Tags			IAM
//	@Security		BearerAuth
//	@Accept			json
//	@Param			role	path	string							true	"Role name"
//	@Param			request	body	authsdk.GrantPermissionRequest	true	"Permission name"
//	@Success		204
//	@Failure		404	{object}	httpx.ErrorBody	"Unknown role or permission"
//	@Router			/v1/iam/roles/{role}/permissions [post].
func (h *IAMHandler) HandleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req authsdk.GrantPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Rights.AssignPermissionToRole(r.Context(), r.PathValue("role"), req.Permission); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignRole godoc
//
//	@Summary		Assign role to user
//	@Description	Idempotent. Requires iam:write.
//	@Tags			IAM
//	@Security		BearerAuth
//	@Accept			json
//	@Param			userID	path	string						true	"Identity provider user id"
//	@Param			request	body	authsdk.AssignRoleRequest	true	"Role name"
//	@Success		204
//	@Failure		404	{object}	httpx.ErrorBody	"Unknown role"
//	@Router			/v1/iam/users/{userID}/roles [post].
func (h *IAMHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AssignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Rights.AssignRoleToUser(r.Context(), r.PathValue("userID"), req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUserRoles godoc
//
//	@Summary		List a user's roles
//	@Tags			IAM
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		string	true	"Identity provider user id"
//	@Success		200		{object}	authsdk.UserRolesResponse
//	@Router			/v1/iam/users/{userID}/roles [get].
func (h *IAMHandler) HandleUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	roles, err := h.Rights.RolesFor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserRolesResponse{UserID: userID, Roles: orEmpty(roles)})
}

// HandleUserPermissions godoc
//
//	@Summary		List a user's effective permissions
//	@Tags			IAM
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		string	true	"Identity provider user id"
//	@Success		200		{object}	authsdk.UserPermissionsResponse
//	@Router			/v1/iam/users/{userID}/permissions [get].
func (h *IAMHandler) HandleUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	perms, err := h.Rights.PermissionsFor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserPermissionsResponse{UserID: userID, Permissions: orEmpty(perms)})
}
