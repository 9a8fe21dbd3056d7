//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return endpoint
}

func TestIntegration_ClaimStore(t *testing.T) {
	ctx := context.Background()

	rdb, err := NewClient(ctx, Config{Addr: setupRedisContainer(t, ctx)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	claims := NewClaimStore(rdb, "")
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("second owner is refused", func(t *testing.T) {
		ok, err := claims.Claim(ctx, tenantID, "a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = claims.Claim(ctx, tenantID, "b", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("holder can refresh", func(t *testing.T) {
		ok, err := claims.Claim(ctx, tenantID, "a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("release by non holder is ignored", func(t *testing.T) {
		require.NoError(t, claims.Release(ctx, tenantID, "b"))

		ok, err := claims.Claim(ctx, tenantID, "b", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("release frees the claim", func(t *testing.T) {
		require.NoError(t, claims.Release(ctx, tenantID, "a"))

		ok, err := claims.Claim(ctx, tenantID, "b", 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("expired claim can be taken", func(t *testing.T) {
		require.Eventually(t, func() bool {
			ok, err := claims.Claim(ctx, tenantID, "c", time.Minute)
			return err == nil && ok
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
