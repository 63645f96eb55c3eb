package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrSeedInvalid = errors.New("invalid rights seed")

// BootstrapService seeds the rights catalogue on first start.
type BootstrapService struct {
	Store store.Store
	Now   func() time.Time
}

// LoadRightsSeed reads a YAML seed file. Unknown keys are rejected so typos
// do not silently drop grants.
func LoadRightsSeed(path string) (domain.RightsSeed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.RightsSeed{}, fmt.Errorf("read rights seed: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var seed domain.RightsSeed
	if err := dec.Decode(&seed); err != nil {
		return domain.RightsSeed{}, fmt.Errorf("%w: %v", ErrSeedInvalid, err)
	}
	return seed, nil
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Rights().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Seed applies seed in one transaction when no roles exist yet. It reports
// whether anything was written.
func (s *BootstrapService) Seed(ctx context.Context, seed domain.RightsSeed) (bool, error) {
	l := slogx.FromContext(ctx)

	// 1. Only ever seed an empty catalogue
	if done, err := s.IsBootstrapped(ctx); err != nil {
		return false, err
	} else if done {
		l.Debug("rights already seeded, skipping")
		return false, nil
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	// 2. Create everything atomically
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		r := tx.Rights()
		permIDs := make(map[string]string, len(seed.Permissions))
		roleIDs := make(map[string]string, len(seed.Roles))

		for _, name := range seed.Permissions {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("%w: blank permission", ErrSeedInvalid)
			}
			p := domain.Permission{ID: uuid.NewString(), Name: name, CreatedAt: now}
			if err := r.CreatePermission(ctx, p); err != nil {
				return fmt.Errorf("create permission %q: %w", name, err)
			}
			permIDs[name] = p.ID
		}

		for _, def := range seed.Roles {
			name := strings.TrimSpace(def.Name)
			if name == "" {
				return fmt.Errorf("%w: blank role", ErrSeedInvalid)
			}
			role := domain.Role{ID: uuid.NewString(), Name: name, CreatedAt: now}
			if err := r.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role %q: %w", name, err)
			}
			roleIDs[name] = role.ID

			for _, pname := range def.Permissions {
				pid, ok := permIDs[strings.TrimSpace(pname)]
				if !ok {
					return fmt.Errorf("%w: role %q references unknown permission %q", ErrSeedInvalid, name, pname)
				}
				if err := r.GrantPermission(ctx, role.ID, pid); err != nil {
					return err
				}
			}
		}

		for _, grant := range seed.Users {
			userID := strings.TrimSpace(grant.UserID)
			if userID == "" {
				return fmt.Errorf("%w: blank user_id", ErrSeedInvalid)
			}
			for _, rname := range grant.Roles {
				rid, ok := roleIDs[strings.TrimSpace(rname)]
				if !ok {
					return fmt.Errorf("%w: user %q references unknown role %q", ErrSeedInvalid, userID, rname)
				}
				if err := r.AssignRole(ctx, userID, rid, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	l.Info("AUDIT rights seeded",
		slog.Int("permissions", len(seed.Permissions)),
		slog.Int("roles", len(seed.Roles)),
		slog.Int("users", len(seed.Users)),
	)
	return true, nil
}
