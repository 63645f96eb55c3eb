package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	testKey    = []byte("0123456789abcdef0123456789abcdef")
	testIssuer = "gatehouse-test"
	epoch      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// clock is a settable time source shared by every component under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeIdentity map[string]domain.VerifiedIdentity

func (f fakeIdentity) Verify(_ context.Context, token string) (domain.VerifiedIdentity, error) {
	id, ok := f[token]
	if !ok {
		return domain.VerifiedIdentity{}, errors.New("unknown token")
	}
	return id, nil
}

// outbox records every code sent, keyed by email.
type outbox struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func (o *outbox) SendOTP(_ context.Context, email, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if o.codes == nil {
		o.codes = make(map[string][]string)
	}
	o.codes[email] = append(o.codes[email], code)
	return nil
}

func (o *outbox) Last(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.codes[email]
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

type harness struct {
	Store  *sqlite.Store
	Clock  *clock
	Outbox *outbox
	OTP    *service.OTPStore
	Tokens *service.TokenService
	Rights *service.RightsService
	Flow   *service.AuthFlow
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	clk := &clock{now: epoch}
	hasher := cryptox.NewBcryptHasher(bcrypt.MinCost)

	tokens, err := service.NewTokenService(testKey, testIssuer, 15*time.Minute, clk.Now)
	require.NoError(t, err)

	otpStore := &service.OTPStore{Repo: s.OTPChallenges(), Hasher: hasher, TTL: 5 * time.Minute}
	rights := &service.RightsService{Store: s, Now: clk.Now}
	box := &outbox{}

	flow := &service.AuthFlow{
		Identity: fakeIdentity{
			"good-token":     {ProviderUserID: "u1", Email: "a@x.com", EmailVerified: true},
			"other-token":    {ProviderUserID: "u2", Email: "b@x.com", EmailVerified: true},
			"blank-email":    {ProviderUserID: "u3", Email: "   ", EmailVerified: true},
			"unverified":     {ProviderUserID: "u4", Email: "d@x.com", EmailVerified: false},
			"missing-userid": {ProviderUserID: "", Email: "e@x.com", EmailVerified: true},
		},
		Notifier:   box,
		Challenges: otpStore,
		Hasher:     hasher,
		Rights:     rights,
		Tokens:     tokens,
		Now:        clk.Now,
	}

	return &harness{
		Store:  s,
		Clock:  clk,
		Outbox: box,
		OTP:    otpStore,
		Tokens: tokens,
		Rights: rights,
		Flow:   flow,
	}
}

// grant creates role -> permissions and assigns the role to userID.
func (h *harness) grant(t *testing.T, userID, role string, perms ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := h.Rights.CreateRole(ctx, role)
	if !errors.Is(err, service.ErrAlreadyExists) {
		require.NoError(t, err)
	}
	for _, p := range perms {
		_, err := h.Rights.CreatePermission(ctx, p)
		if !errors.Is(err, service.ErrAlreadyExists) {
			require.NoError(t, err)
		}
		require.NoError(t, h.Rights.AssignPermissionToRole(ctx, role, p))
	}
	require.NoError(t, h.Rights.AssignRoleToUser(ctx, userID, role))
}

// capturedLogs returns a context whose request logger writes into the buffer.
func capturedLogs() (context.Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Timestamps carry nanosecond digits that could collide with a code
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	return slogx.WithContext(context.Background(), logger), buf
}

func requireKind(t *testing.T, err error, want service.Kind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := service.KindOf(err)
	require.True(t, ok, "expected a service error, got %T: %v", err, err)
	require.Equal(t, want, kind)
}

var rightsNone = domain.Rights{}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
