package commands

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/projectkeeper/internal/storage"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

func memMedia() *storage.FS {
	return storage.NewFS(afero.NewMemMapFs(), "/media")
}

func TestPostgresFlags_Validate(t *testing.T) {
	t.Run("missing connection string", func(t *testing.T) {
		flags := PostgresFlags{}
		require.Error(t, flags.Validate())
	})

	t.Run("queue requires secret", func(t *testing.T) {
		flags := PostgresFlags{ConnString: "postgres://localhost/keeper"}
		require.NoError(t, flags.Validate())
		require.Error(t, flags.validateQueue())
	})

	t.Run("queue rejects short secret", func(t *testing.T) {
		flags := PostgresFlags{ConnString: "postgres://localhost/keeper", TokenSigningSecret: "short"}
		require.Error(t, flags.validateQueue())
	})

	t.Run("queue accepts 32 byte secret", func(t *testing.T) {
		flags := PostgresFlags{
			ConnString:         "postgres://localhost/keeper",
			TokenSigningSecret: "0123456789abcdef0123456789abcdef",
		}
		require.NoError(t, flags.validateQueue())
	})
}

func TestOpenBackend_Memory(t *testing.T) {
	ctx := context.Background()

	b, err := openBackend(ctx, StoreFlags{StoreType: "memory"}, true)
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.stores)
	require.NotNil(t, b.jobs)
	require.NotNil(t, b.claims)
	require.Nil(t, b.pool)

	require.NoError(t, b.useRedisClaims(ctx, ClaimFlags{Backend: "store"}))

	withoutQueue, err := openBackend(ctx, StoreFlags{StoreType: "memory"}, false)
	require.NoError(t, err)
	defer withoutQueue.Close()
	require.Nil(t, withoutQueue.jobs)
}

func TestBackend_CloseOrder(t *testing.T) {
	var order []int
	b := &backend{}
	b.onClose(func() { order = append(order, 1) })
	b.onClose(func() { order = append(order, 2) })
	b.Close()
	require.Equal(t, []int{2, 1}, order)
}

func TestNewLifecycle(t *testing.T) {
	b, err := openBackend(context.Background(), StoreFlags{StoreType: "memory"}, false)
	require.NoError(t, err)
	defer b.Close()

	t.Run("default plans", func(t *testing.T) {
		svc, closeFn, err := newLifecycle(b.stores, LifecycleFlags{RevisionRetention: "purge", CodeLength: 8}, memMedia())
		require.NoError(t, err)
		require.NotNil(t, svc)
		closeFn()
	})

	t.Run("missing plan file", func(t *testing.T) {
		_, _, err := newLifecycle(b.stores, LifecycleFlags{PlanFile: t.TempDir() + "/missing.yaml"}, memMedia())
		require.Error(t, err)
	})

	t.Run("invalid retention", func(t *testing.T) {
		_, _, err := newLifecycle(b.stores, LifecycleFlags{RevisionRetention: "forever"}, memMedia())
		require.Error(t, err)
	})
}

func TestNewNotifier_LogOnly(t *testing.T) {
	n, closeFn, err := newNotifier(NotifyFlags{}, "test")
	require.NoError(t, err)
	require.NotNil(t, n)
	closeFn()
}

func TestRunSweepLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSweepLoop(ctx, 5*time.Millisecond, 10, func(_ context.Context, limit int) (int, error) {
			if limit != 10 {
				return 0, errors.New("unexpected limit")
			}
			if calls.Add(1) == 1 {
				return 0, errors.New("boom")
			}
			return 1, nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}
}

func TestActivateCmd(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid tenant id", func(t *testing.T) {
		cmd := &ActivateCmd{Store: StoreFlags{StoreType: "memory"}, TenantID: "nope"}
		require.Error(t, cmd.Run(ctx, &Globals{}))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		cmd := &ActivateCmd{Store: StoreFlags{StoreType: "memory"}, TenantID: uuid.NewString()}
		require.ErrorIs(t, cmd.Run(ctx, &Globals{}), store.ErrTenantNotFound)
	})
}
