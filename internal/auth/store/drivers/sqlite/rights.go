package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type rightsRepo struct {
	q querier
}

func (r *rightsRepo) RoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	return r.names(ctx, `
		SELECT DISTINCT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY ro.name`, userID)
}

func (r *rightsRepo) PermissionNamesForUser(ctx context.Context, userID string) ([]string, error) {
	return r.names(ctx, `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = ?
		ORDER BY p.name`, userID)
}

func (r *rightsRepo) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *rightsRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var (
		role    domain.Role
		created int64
	)
	err := r.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE name = ?`, name).
		Scan(&role.ID, &role.Name, &created)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	role.CreatedAt = fromUnix(created)
	return role, nil
}

func (r *rightsRepo) GetPermissionByName(ctx context.Context, name string) (domain.Permission, error) {
	var (
		p       domain.Permission
		created int64
	)
	err := r.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM permissions WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &created)
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	p.CreatedAt = fromUnix(created)
	return p, nil
}

func (r *rightsRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		var (
			role    domain.Role
			created int64
		)
		if err := rows.Scan(&role.ID, &role.Name, &created); err != nil {
			return nil, err
		}
		role.CreatedAt = fromUnix(created)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rightsRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO roles (id, name, created_at) VALUES (?, ?, ?)`,
		role.ID, role.Name, toUnix(role.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *rightsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO permissions (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, toUnix(p.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *rightsRepo) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
		roleID, permissionID,
	)
	return err
}

func (r *rightsRepo) AssignRole(ctx context.Context, userID, roleID string, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role_id, assigned_at) VALUES (?, ?, ?)`,
		userID, roleID, toUnix(now),
	)
	return err
}

func (r *rightsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
