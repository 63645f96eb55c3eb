package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/google/uuid"
)

var (
	ErrInvalidName        = errors.New("name must not be blank")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrAlreadyExists      = errors.New("already exists")
)

// RightsService resolves a user's roles and permissions and administers the
// catalogue behind them.
type RightsService struct {
	Store store.Store
	Now   func() time.Time
}

func (s *RightsService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// RolesFor returns the distinct role names of userID. Unknown users have none.
func (s *RightsService) RolesFor(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.Store.Rights().RoleNamesForUser(ctx, userID)
	if err != nil {
		return nil, infraError("load roles", err)
	}
	return roles, nil
}

// PermissionsFor returns the distinct permission names granted to userID
// through any role.
func (s *RightsService) PermissionsFor(ctx context.Context, userID string) ([]string, error) {
	perms, err := s.Store.Rights().PermissionNamesForUser(ctx, userID)
	if err != nil {
		return nil, infraError("load permissions", err)
	}
	return perms, nil
}

// Resolve loads roles and permissions together.
func (s *RightsService) Resolve(ctx context.Context, userID string) (domain.Rights, error) {
	roles, err := s.RolesFor(ctx, userID)
	if err != nil {
		return domain.Rights{}, err
	}
	perms, err := s.PermissionsFor(ctx, userID)
	if err != nil {
		return domain.Rights{}, err
	}
	return domain.Rights{Roles: roles, Permissions: perms}, nil
}

func (s *RightsService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.Rights().ListRoles(ctx)
	if err != nil {
		return nil, infraError("list roles", err)
	}
	return roles, nil
}

func (s *RightsService) CreateRole(ctx context.Context, name string) (domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Role{}, ErrInvalidName
	}

	role := domain.Role{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC()}
	if err := s.Store.Rights().CreateRole(ctx, role); err != nil {
		return domain.Role{}, mapWriteErr("role", name, err)
	}

	slogx.FromContext(ctx).Info("AUDIT role created",
		slog.String("role_id", role.ID),
		slog.String("role", role.Name),
	)
	return role, nil
}

func (s *RightsService) CreatePermission(ctx context.Context, name string) (domain.Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Permission{}, ErrInvalidName
	}

	p := domain.Permission{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC()}
	if err := s.Store.Rights().CreatePermission(ctx, p); err != nil {
		return domain.Permission{}, mapWriteErr("permission", name, err)
	}

	slogx.FromContext(ctx).Info("AUDIT permission created",
		slog.String("permission_id", p.ID),
		slog.String("permission", p.Name),
	)
	return p, nil
}

// AssignPermissionToRole grants a permission to a role by name. Repeat
// grants succeed without change.
func (s *RightsService) AssignPermissionToRole(ctx context.Context, roleName, permissionName string) error {
	roleName = strings.TrimSpace(roleName)
	permissionName = strings.TrimSpace(permissionName)
	if roleName == "" || permissionName == "" {
		return ErrInvalidName
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		role, err := tx.Rights().GetRoleByName(ctx, roleName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
		}
		if err != nil {
			return err
		}

		perm, err := tx.Rights().GetPermissionByName(ctx, permissionName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrPermissionNotFound, permissionName)
		}
		if err != nil {
			return err
		}

		return tx.Rights().GrantPermission(ctx, role.ID, perm.ID)
	})
	if err != nil {
		return mapLookupErr(err)
	}

	slogx.FromContext(ctx).Info("AUDIT permission assigned to role",
		slog.String("role", roleName),
		slog.String("permission", permissionName),
	)
	return nil
}

// AssignRoleToUser gives userID the named role. Repeat assignments succeed
// without change.
func (s *RightsService) AssignRoleToUser(ctx context.Context, userID, roleName string) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(roleName)
	if userID == "" || roleName == "" {
		return ErrInvalidName
	}

	now := s.now().UTC()
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		role, err := tx.Rights().GetRoleByName(ctx, roleName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
		}
		if err != nil {
			return err
		}
		return tx.Rights().AssignRole(ctx, userID, role.ID, now)
	})
	if err != nil {
		return mapLookupErr(err)
	}

	slogx.FromContext(ctx).Info("AUDIT role assigned to user",
		slog.String("user_id", userID),
		slog.String("role", roleName),
	)
	return nil
}

func mapWriteErr(kind, name string, err error) error {
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s %q", ErrAlreadyExists, kind, name)
	}
	return infraError("create "+kind, err)
}

func mapLookupErr(err error) error {
	if errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrPermissionNotFound) {
		return err
	}
	return infraError("update rights", err)
}
