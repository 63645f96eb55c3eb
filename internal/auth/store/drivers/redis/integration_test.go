//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	otpredis "github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a real Redis server and returns a connected store.
func setupRedisContainer(t *testing.T) *otpredis.OTPStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })

	s := otpredis.NewOTPStore(client, "it")
	require.NoError(t, s.Ping(ctx))
	return s
}

func TestRedisOTP_Integration(t *testing.T) {
	ctx := context.Background()
	s := setupRedisContainer(t)
	now := time.Now().UTC()

	first := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, first, now))

	second := challenge("u1", now.Add(time.Second), 5*time.Minute)
	require.NoError(t, s.Replace(ctx, second, now.Add(time.Second)))

	got, err := s.LatestValid(ctx, "u1", now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)

	ok, err := s.MarkVerified(ctx, first.ID, first.ExpiresAt, now.Add(2*time.Second))
	require.NoError(t, err)
	require.False(t, ok, "superseded challenge must not be consumed")

	n, ok, err := s.ReserveAttempt(ctx, second.ID, second.ExpiresAt, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, n)

	ok, err = s.MarkVerified(ctx, second.ID, second.ExpiresAt, now.Add(2*time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.MarkVerified(ctx, second.ID, second.ExpiresAt, now.Add(3*time.Second))
	require.NoError(t, err)
	require.False(t, ok)
}
