package accesscode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/store/memory"
)

func newTenant(t *testing.T, stores *store.Stores) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		TenantID:      uuid.Must(uuid.NewV7()),
		Name:          "tenant-" + uuid.NewString(),
		Plan:          "standard",
		Activated:     true,
		ResourceQuota: 1000,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, stores.Tenants.Create(context.Background(), tenant))

	return tenant
}

func newResource(t *testing.T, stores *store.Stores, tenant *models.Tenant) *models.Resource {
	t.Helper()

	res := &models.Resource{
		ResourceID: uuid.Must(uuid.NewV7()),
		TenantID:   tenant.TenantID,
		Name:       "resource",
		Type:       models.ResourceTypeEBook,
		CreatorRef: "creator",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Payload:    &models.EBookPayload{DocumentKey: "doc.pdf", PageCount: 1},
	}
	require.NoError(t, stores.Resources.Create(context.Background(), res, tenant.ResourceQuota))

	return res
}

func fixedCandidate(value string) CandidateFunc {
	return func(*models.Resource, string, string, int) string {
		return value
	}
}

func TestHashCandidate(t *testing.T) {
	res := &models.Resource{
		ResourceID: uuid.Must(uuid.NewV7()),
		TenantID:   uuid.Must(uuid.NewV7()),
	}

	t.Run("deterministic for the same input", func(t *testing.T) {
		a := HashCandidate(res, "Public", "salt", DefaultCodeLength)
		b := HashCandidate(res, "Public", "salt", DefaultCodeLength)
		require.Equal(t, a, b)
		require.Len(t, a, DefaultCodeLength)
	})

	t.Run("salt changes the candidate", func(t *testing.T) {
		a := HashCandidate(res, "Public", "salt-1", DefaultCodeLength)
		b := HashCandidate(res, "Public", "salt-2", DefaultCodeLength)
		require.NotEqual(t, a, b)
	})

	t.Run("truncates to length", func(t *testing.T) {
		require.Len(t, HashCandidate(res, "Public", "salt", 5), 5)
	})
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a code for the resource", func(t *testing.T) {
		stores := memory.NewStores()
		res := newResource(t, stores, newTenant(t, stores))
		gen := New(stores.AccessCodes, Config{})

		code, err := gen.Generate(ctx, res, Options{Name: "Public", IsPublic: true, Online: true})
		require.NoError(t, err)
		require.Len(t, code.Code, DefaultCodeLength)
		require.Equal(t, res.ResourceID, code.ResourceID)
		require.Equal(t, res.TenantID, code.TenantID)
		require.True(t, code.IsPublic)
		require.False(t, code.Deletable)

		exists, err := stores.AccessCodes.CodeExists(ctx, code.Code)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("collision appends incrementing suffix", func(t *testing.T) {
		stores := memory.NewStores()
		tenant := newTenant(t, stores)
		gen := New(stores.AccessCodes, Config{}, WithCandidateFunc(fixedCandidate("abcdefgh")))

		var got []string
		for i := 0; i < 3; i++ {
			code, err := gen.Generate(ctx, newResource(t, stores, tenant), Options{Name: "Public"})
			require.NoError(t, err)
			got = append(got, code.Code)
		}

		require.Equal(t, []string{"abcdefgh", "abcdefgh1", "abcdefgh2"}, got)
	})

	t.Run("exhausted after max attempts", func(t *testing.T) {
		stores := memory.NewStores()
		tenant := newTenant(t, stores)
		gen := New(stores.AccessCodes, Config{MaxAttempts: 3}, WithCandidateFunc(fixedCandidate("taken")))

		for i := 0; i < 3; i++ {
			_, err := gen.Generate(ctx, newResource(t, stores, tenant), Options{Name: "Public"})
			require.NoError(t, err)
		}

		_, err := gen.Generate(ctx, newResource(t, stores, tenant), Options{Name: "Public"})
		require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	})

	t.Run("soft deleted codes free their value", func(t *testing.T) {
		stores := memory.NewStores()
		tenant := newTenant(t, stores)
		gen := New(stores.AccessCodes, Config{}, WithCandidateFunc(fixedCandidate("reused")))

		first := newResource(t, stores, tenant)
		_, err := gen.Generate(ctx, first, Options{Name: "Public"})
		require.NoError(t, err)
		require.NoError(t, stores.Resources.SoftDelete(ctx, first.ResourceID, time.Now()))

		code, err := gen.Generate(ctx, newResource(t, stores, tenant), Options{Name: "Public"})
		require.NoError(t, err)
		require.Equal(t, "reused", code.Code)
	})

	t.Run("preview conflict is returned to caller", func(t *testing.T) {
		stores := memory.NewStores()
		res := newResource(t, stores, newTenant(t, stores))
		gen := New(stores.AccessCodes, Config{})

		_, err := gen.Generate(ctx, res, Options{Name: models.PreviewCodeName, IsPreview: true})
		require.NoError(t, err)

		_, err = gen.Generate(ctx, res, Options{Name: models.PreviewCodeName, IsPreview: true})
		require.ErrorIs(t, err, store.ErrPreviewCodeExists)
	})

	t.Run("store errors are wrapped", func(t *testing.T) {
		res := &models.Resource{ResourceID: uuid.Must(uuid.NewV7()), TenantID: uuid.Must(uuid.NewV7())}
		gen := New(failingCodes{}, Config{})

		_, err := gen.Generate(ctx, res, Options{Name: "Public"})
		require.ErrorIs(t, err, errStoreDown)
	})
}

func TestGenerator_ConcurrentCollisions(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()
	tenant := newTenant(t, stores)

	const workers = 100

	resources := make([]*models.Resource, workers)
	for i := range resources {
		resources[i] = newResource(t, stores, tenant)
	}

	gen := New(stores.AccessCodes, Config{MaxAttempts: 2 * workers}, WithCandidateFunc(fixedCandidate("same")))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]uuid.UUID)
		errs  []error
	)

	for _, res := range resources {
		wg.Add(1)
		go func(res *models.Resource) {
			defer wg.Done()

			code, err := gen.Generate(ctx, res, Options{Name: "Public"})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			codes[code.Code] = res.ResourceID
		}(res)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, codes, workers)
}

var errStoreDown = errors.New("store down")

type failingCodes struct {
	store.AccessCodeStore
}

func (failingCodes) CodeExists(context.Context, string) (bool, error) {
	return false, errStoreDown
}
