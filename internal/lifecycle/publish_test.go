package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/revision"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// racingPreviewCodes behaves as if another caller stored the preview code between the
// lookup and the insert, and then fails the second lookup with lookupErr.
type racingPreviewCodes struct {
	store.AccessCodeStore
	mu        sync.Mutex
	lookups   int
	lookupErr error
}

func (c *racingPreviewCodes) GetPreview(ctx context.Context, resourceID uuid.UUID) (*models.AccessCode, error) {
	c.mu.Lock()
	c.lookups++
	first := c.lookups == 1
	c.mu.Unlock()

	if first {
		return nil, store.ErrAccessCodeNotFound
	}
	return nil, c.lookupErr
}

func (c *racingPreviewCodes) Create(ctx context.Context, code *models.AccessCode) error {
	if code.IsPreview {
		return store.ErrPreviewCodeExists
	}
	return c.AccessCodeStore.Create(ctx, code)
}

func TestService_CreateOrGetPreviewCode(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the same code twice", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)

		first, err := f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
		require.NoError(t, err)
		require.True(t, first.IsPreview)
		require.True(t, first.IsPublic)
		require.True(t, first.Online)
		require.Equal(t, models.PreviewCodeName, first.Name)

		second, err := f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
		require.NoError(t, err)
		require.Equal(t, first.AccessCodeID, second.AccessCodeID)
	})

	t.Run("concurrent callers converge", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)

		const callers = 20
		ids := make(chan string, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code, err := f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
				if err == nil {
					ids <- code.AccessCodeID.String()
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			seen[id] = true
		}
		require.Len(t, seen, 1)

		n, err := f.stores.AccessCodes.CountLive(ctx, res.ResourceID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("name avoids existing code names", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)

		_, err := f.svc.Publish(ctx, PublishRequest{ResourceID: res.ResourceID, Name: models.PreviewCodeName})
		require.NoError(t, err)

		code, err := f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
		require.NoError(t, err)
		require.Equal(t, models.PreviewCodeName+"1", code.Name)
	})

	t.Run("link resources cannot be previewed", func(t *testing.T) {
		f := newFixture(t, Config{})
		res, err := f.svc.Create(ctx, CreateRequest{
			TenantID:   f.tenant.TenantID,
			Type:       models.ResourceTypeLink,
			Name:       "site",
			CreatorRef: "user-1",
			Payload:    samplePayload(models.ResourceTypeLink),
		})
		require.NoError(t, err)

		_, err = f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
		require.ErrorIs(t, err, ErrNotPublishable)
	})

	t.Run("soft deleted resource", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)
		require.NoError(t, f.svc.SoftDelete(ctx, res.ResourceID, "user-1"))

		_, err := f.svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
		require.ErrorIs(t, err, ErrResourceDeleted)
	})
}

func TestService_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("name is required", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)

		_, err := f.svc.Publish(ctx, PublishRequest{ResourceID: res.ResourceID})
		require.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("marks resource published", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.createLead(t, "r1", 0)

		code, err := f.svc.Publish(ctx, PublishRequest{ResourceID: res.ResourceID, Name: "Kiosk", Online: true})
		require.NoError(t, err)
		require.Equal(t, "Kiosk", code.Name)
		require.False(t, code.IsPreview)

		published, err := f.svc.IsPublished(ctx, res.ResourceID)
		require.NoError(t, err)
		require.True(t, published)
	})
}

func TestService_CreateOrGetPreviewCode_LostRaceLookupFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	res := f.createLead(t, "r1", 0)

	lookupErr := errors.New("connection reset")
	codes := &racingPreviewCodes{AccessCodeStore: f.stores.AccessCodes, lookupErr: lookupErr}
	stores := *f.stores
	stores.AccessCodes = codes

	recorder, err := revision.NewRecorder()
	require.NoError(t, err)
	t.Cleanup(recorder.Close)

	svc, err := NewService(&stores, f.oracle, accesscode.New(codes, accesscode.Config{}), recorder, Config{})
	require.NoError(t, err)

	_, err = svc.CreateOrGetPreviewCode(ctx, res.ResourceID)
	require.ErrorIs(t, err, lookupErr)
	require.ErrorContains(t, err, "failed to get preview code")
	require.Equal(t, 2, codes.lookups)
}
