package teardown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/capability"
	"github.com/wolfeidau/projectkeeper/internal/lifecycle"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/revision"
	"github.com/wolfeidau/projectkeeper/internal/storage"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/store/memory"
	"github.com/wolfeidau/projectkeeper/internal/worker"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*models.DeletionSummary
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, summary *models.DeletionSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

// flakyPurger fails PurgeTenantStorage until failures reaches zero.
type flakyPurger struct {
	*storage.FS
	mu       sync.Mutex
	failures int
	calls    int
}

func (p *flakyPurger) PurgeTenantStorage(ctx context.Context, tenantID uuid.UUID) error {
	p.mu.Lock()
	p.calls++
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		p.mu.Unlock()
		return errors.New("bucket unavailable")
	}
	p.mu.Unlock()
	return p.FS.PurgeTenantStorage(ctx, tenantID)
}

// failingDestroyer fails DestroyFully for one resource until failures reaches zero.
type failingDestroyer struct {
	ResourceDestroyer
	failFor  uuid.UUID
	failures int
}

func (d *failingDestroyer) DestroyFully(ctx context.Context, resourceID uuid.UUID, opts ...lifecycle.DestroyOption) error {
	if resourceID == d.failFor && d.failures > 0 {
		d.failures--
		return errors.New("database unavailable")
	}
	return d.ResourceDestroyer.DestroyFully(ctx, resourceID, opts...)
}

// countingClaims counts Claim calls and refuses every call after loseAfter when it is set.
type countingClaims struct {
	store.ClaimStore
	mu        sync.Mutex
	calls     int
	loseAfter int
}

func (c *countingClaims) Claim(ctx context.Context, tenantID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	c.calls++
	lost := c.loseAfter > 0 && c.calls > c.loseAfter
	c.mu.Unlock()

	if lost {
		return false, nil
	}
	return c.ClaimStore.Claim(ctx, tenantID, owner, ttl)
}

func (c *countingClaims) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	stores   *store.Stores
	jobs     *memory.JobStore
	claims   *memory.ClaimStore
	fs       afero.Fs
	media    *storage.FS
	purger   *flakyPurger
	svc      *lifecycle.Service
	notifier *recordingNotifier
	orch     *Orchestrator
	tenant   *models.Tenant
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()

	stores := memory.NewStores()
	tenant := &models.Tenant{
		TenantID:      uuid.Must(uuid.NewV7()),
		Name:          "acme",
		ResourceQuota: 100,
		StorageRoot:   "/tenants/acme",
	}
	require.NoError(t, stores.Tenants.Create(ctx, tenant))

	fs := afero.NewMemMapFs()
	media := storage.NewFS(fs, "/media")

	recorder, err := revision.NewRecorder()
	require.NoError(t, err)
	t.Cleanup(recorder.Close)

	oracle := capability.NewPlanOracle(stores.Tenants, stores.Resources, capability.AllTypes())
	svc, err := lifecycle.NewService(stores, oracle, accesscode.New(stores.AccessCodes, accesscode.Config{}), recorder, lifecycle.Config{},
		lifecycle.WithArtifactStore(media))
	require.NoError(t, err)

	if cfg.StepInitialInterval == 0 {
		cfg.StepInitialInterval = time.Millisecond
		cfg.StepMaxInterval = time.Millisecond
	}
	if cfg.StepMaxTries == 0 {
		cfg.StepMaxTries = 3
	}

	f := &fixture{
		stores:   stores,
		jobs:     memory.NewJobStore(),
		claims:   memory.NewClaimStore(),
		fs:       fs,
		media:    media,
		purger:   &flakyPurger{FS: media},
		svc:      svc,
		notifier: &recordingNotifier{},
		tenant:   tenant,
	}
	f.orch = NewOrchestrator(stores, svc, f.claims, f.purger, f.notifier, cfg)

	return f
}

func (f *fixture) create(t *testing.T, req lifecycle.CreateRequest) *models.Resource {
	t.Helper()

	req.TenantID = f.tenant.TenantID
	req.CreatorRef = "owner"
	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	return res
}

func (f *fixture) lead(t *testing.T, name string, submissions int64) *models.Resource {
	return f.create(t, lifecycle.CreateRequest{
		Type: models.ResourceTypeLead,
		Name: name,
		Payload: &models.LeadPayload{
			Pages:           []models.Page{{ID: "p1"}},
			AttachmentKeys:  []string{name + ".pdf"},
			SubmissionCount: submissions,
		},
		PublishAs: "Public",
	})
}

func (f *fixture) ebook(t *testing.T, name string) *models.Resource {
	return f.create(t, lifecycle.CreateRequest{
		Type:    models.ResourceTypeEBook,
		Name:    name,
		Payload: &models.EBookPayload{DocumentKey: name + ".pdf", PageCount: 10},
	})
}

func (f *fixture) addUser(t *testing.T, protected bool) {
	t.Helper()

	require.NoError(t, f.stores.Users.Create(context.Background(), &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		TenantID:  f.tenant.TenantID,
		Name:      "user",
		Email:     uuid.NewString() + "@example.com",
		Protected: protected,
	}))
}

func (f *fixture) requireNothingLeft(t *testing.T, resourceIDs ...uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tenantID := f.tenant.TenantID

	_, err := f.stores.Tenants.Get(ctx, tenantID)
	require.ErrorIs(t, err, store.ErrTenantNotFound)

	resources, err := f.stores.Resources.ListByTenant(ctx, tenantID, store.ListResourcesOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Empty(t, resources)

	users, err := f.stores.Users.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, users)

	usage, err := f.stores.UsageLogs.CountByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Zero(t, usage)

	for _, id := range resourceIDs {
		codes, err := f.stores.AccessCodes.ListByResource(ctx, id, true)
		require.NoError(t, err)
		require.Empty(t, codes)

		revisions, err := f.stores.Revisions.List(ctx, id)
		require.NoError(t, err)
		require.Empty(t, revisions)
	}

	exists, err := afero.DirExists(f.fs, f.media.TenantDir(tenantID))
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = afero.DirExists(f.fs, f.tenant.StorageRoot)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestOrchestrator_Teardown(t *testing.T) {
	ctx := context.Background()

	t.Run("summarises submissions and leaves nothing behind", func(t *testing.T) {
		f := newFixture(t, Config{})

		r1 := f.lead(t, "Contact form", 5)
		r2 := f.ebook(t, "Catalogue")
		f.addUser(t, false)
		f.addUser(t, true)

		require.NoError(t, f.svc.RecordOpen(ctx, r1.ResourceID))
		name := "Contact form v2"
		_, err := f.svc.Update(ctx, lifecycle.UpdateRequest{ResourceID: r1.ResourceID, EditorRef: "owner", Name: &name})
		require.NoError(t, err)
		_, err = f.svc.Update(ctx, lifecycle.UpdateRequest{ResourceID: r1.ResourceID, EditorRef: "owner", Name: &r1.Name})
		require.NoError(t, err)

		require.NoError(t, afero.WriteFile(f.fs, f.media.TenantDir(f.tenant.TenantID)+"/Catalogue.pdf", []byte("pdf"), 0o600))
		require.NoError(t, afero.WriteFile(f.fs, f.tenant.StorageRoot+"/logo.png", []byte("png"), 0o600))

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, []models.DeletedSubmissions{{ResourceName: r1.Name, SubmissionCount: 5}}, summary.Entries)
		require.Equal(t, "acme", summary.TenantName)

		f.requireNothingLeft(t, r1.ResourceID, r2.ResourceID)

		require.Len(t, f.notifier.summaries, 1)
		require.Equal(t, summary, f.notifier.summaries[0])
	})

	t.Run("second run is a no-op with empty summary", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.lead(t, "Contact form", 5)

		_, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.True(t, summary.Empty())
		require.Len(t, f.notifier.summaries, 1)
	})

	t.Run("soft deleted resources are destroyed and summarised", func(t *testing.T) {
		f := newFixture(t, Config{})
		kept := f.lead(t, "Old survey", 2)
		require.NoError(t, f.svc.SoftDelete(ctx, kept.ResourceID, "owner"))

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, []models.DeletedSubmissions{{ResourceName: "Old survey", SubmissionCount: 2}}, summary.Entries)

		f.requireNothingLeft(t, kept.ResourceID)
	})

	t.Run("pages through many resources", func(t *testing.T) {
		f := newFixture(t, Config{BatchSize: 2})

		var ids []uuid.UUID
		for i := 0; i < 7; i++ {
			ids = append(ids, f.lead(t, uuid.NewString(), 1).ResourceID)
		}

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Len(t, summary.Entries, 7)

		f.requireNothingLeft(t, ids...)
	})

	t.Run("inconsistent resource does not abort", func(t *testing.T) {
		f := newFixture(t, Config{})
		broken := f.ebook(t, "Broken")
		ok := f.lead(t, "Fine", 3)
		require.NoError(t, f.stores.Resources.DeletePayload(ctx, broken.ResourceID))

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, []models.DeletedSubmissions{{ResourceName: "Fine", SubmissionCount: 3}}, summary.Entries)

		f.requireNothingLeft(t, broken.ResourceID, ok.ResourceID)
	})

	t.Run("transient step failures are retried", func(t *testing.T) {
		f := newFixture(t, Config{StepMaxTries: 3})
		f.purger.failures = 2
		f.lead(t, "Form", 1)

		_, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, 3, f.purger.calls)
	})

	t.Run("persistent failure keeps tenant row and can be re-run", func(t *testing.T) {
		f := newFixture(t, Config{StepMaxTries: 2})
		f.purger.failures = -1
		f.lead(t, "Form", 4)

		_, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.Error(t, err)

		_, err = f.stores.Tenants.Get(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Empty(t, f.notifier.summaries)

		f.purger.failures = 0

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, []models.DeletedSubmissions{{ResourceName: "Form", SubmissionCount: 4}}, summary.Entries)
		require.Len(t, f.notifier.summaries, 1)
		f.requireNothingLeft(t)
	})

	t.Run("entries from an earlier failed run are reported", func(t *testing.T) {
		f := newFixture(t, Config{StepMaxTries: 1})
		r1 := f.lead(t, "R1", 5)
		r2 := f.lead(t, "R2", 3)

		destroyer := &failingDestroyer{ResourceDestroyer: f.svc, failFor: r2.ResourceID, failures: 1}
		orch := NewOrchestrator(f.stores, destroyer, f.claims, f.purger, f.notifier, f.orch.cfg)

		_, err := orch.Teardown(ctx, f.tenant.TenantID)
		require.Error(t, err)

		_, err = f.svc.Get(ctx, r1.ResourceID)
		require.ErrorIs(t, err, lifecycle.ErrResourceNotFound)

		summary, err := orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.ElementsMatch(t, []models.DeletedSubmissions{
			{ResourceName: "R1", SubmissionCount: 5},
			{ResourceName: "R2", SubmissionCount: 3},
		}, summary.Entries)

		require.Len(t, f.notifier.summaries, 1)
		require.Equal(t, summary, f.notifier.summaries[0])
		f.requireNothingLeft(t, r1.ResourceID, r2.ResourceID)
	})

	t.Run("summary of a run stopped after tenant deletion is sent on re-run", func(t *testing.T) {
		f := newFixture(t, Config{})

		require.NoError(t, f.stores.DeletionLedger.Record(ctx, &models.DeletionLedgerEntry{
			TenantID:        f.tenant.TenantID,
			TenantName:      "acme",
			ResourceID:      uuid.Must(uuid.NewV7()),
			ResourceName:    "Form",
			SubmissionCount: 7,
		}))
		require.NoError(t, f.stores.Tenants.Delete(ctx, f.tenant.TenantID))

		summary, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, "acme", summary.TenantName)
		require.Equal(t, []models.DeletedSubmissions{{ResourceName: "Form", SubmissionCount: 7}}, summary.Entries)
		require.Len(t, f.notifier.summaries, 1)

		summary, err = f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.True(t, summary.Empty())
		require.Len(t, f.notifier.summaries, 1)
	})

	t.Run("claim is renewed while paging", func(t *testing.T) {
		f := newFixture(t, Config{})
		claims := &countingClaims{ClaimStore: f.claims}
		orch := NewOrchestrator(f.stores, f.svc, claims, f.purger, f.notifier, Config{
			BatchSize:           2,
			StepInitialInterval: time.Millisecond,
			StepMaxInterval:     time.Millisecond,
		})

		for i := 0; i < 5; i++ {
			f.lead(t, uuid.NewString(), 1)
		}

		_, err := orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)

		// initial claim, one renewal per step and one per page of resources
		require.GreaterOrEqual(t, claims.count(), 1+5+3)
		f.requireNothingLeft(t)
	})

	t.Run("lost claim stops the run", func(t *testing.T) {
		f := newFixture(t, Config{})
		// initial claim and the renewal before the first step succeed, the renewal after the first page fails
		claims := &countingClaims{ClaimStore: f.claims, loseAfter: 2}
		orch := NewOrchestrator(f.stores, f.svc, claims, f.purger, f.notifier, Config{
			BatchSize:           2,
			StepMaxTries:        3,
			StepInitialInterval: time.Millisecond,
			StepMaxInterval:     time.Millisecond,
		})

		for i := 0; i < 5; i++ {
			f.lead(t, uuid.NewString(), 1)
		}

		_, err := orch.Teardown(ctx, f.tenant.TenantID)
		require.ErrorIs(t, err, ErrTeardownInProgress)
		require.Equal(t, 3, claims.count())

		_, err = f.stores.Tenants.Get(ctx, f.tenant.TenantID)
		require.NoError(t, err)

		left, err := f.stores.Resources.ListByTenant(ctx, f.tenant.TenantID, store.ListResourcesOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, left, 3)

		entries, err := f.stores.DeletionLedger.List(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Empty(t, f.notifier.summaries)
	})

	t.Run("concurrent run is refused", func(t *testing.T) {
		f := newFixture(t, Config{})

		ok, err := f.claims.Claim(ctx, f.tenant.TenantID, "other-worker", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.orch.Teardown(ctx, f.tenant.TenantID)
		require.ErrorIs(t, err, ErrTeardownInProgress)

		_, err = f.stores.Tenants.Get(ctx, f.tenant.TenantID)
		require.NoError(t, err)
	})

	t.Run("notification failure does not fail teardown", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.notifier.err = errors.New("smtp down")
		f.lead(t, "Form", 1)

		_, err := f.orch.Teardown(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		f.requireNothingLeft(t)
	})
}

func TestScheduler_Schedule(t *testing.T) {
	ctx := context.Background()

	t.Run("flags tenant and dedupes jobs", func(t *testing.T) {
		f := newFixture(t, Config{})
		sched := NewScheduler(f.stores.Tenants, f.jobs)

		first, err := sched.Schedule(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateScheduled, first.State)

		second, err := sched.Schedule(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, first.JobID, second.JobID)

		tenant, err := f.stores.Tenants.Get(ctx, f.tenant.TenantID)
		require.NoError(t, err)
		require.True(t, tenant.Deleted)

		job, err := f.jobs.Get(ctx, first.JobID)
		require.NoError(t, err)
		require.Equal(t, Queue, job.Queue)
		require.Equal(t, JobKind, job.Kind)
		require.Equal(t, DedupeKey(f.tenant.TenantID), job.DedupeKey)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		f := newFixture(t, Config{})
		sched := NewScheduler(f.stores.Tenants, f.jobs)

		_, err := sched.Schedule(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("flagged tenant cannot create resources", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := NewScheduler(f.stores.Tenants, f.jobs).Schedule(ctx, f.tenant.TenantID)
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, lifecycle.CreateRequest{
			TenantID:   f.tenant.TenantID,
			Type:       models.ResourceTypeEBook,
			Name:       "late",
			CreatorRef: "owner",
			Payload:    &models.EBookPayload{DocumentKey: "late.pdf"},
		})
		require.ErrorIs(t, err, lifecycle.ErrValidationFailed)
	})
}

func TestOrchestrator_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("worker runs scheduled teardown", func(t *testing.T) {
		f := newFixture(t, Config{})
		r1 := f.lead(t, "Form", 5)

		handle, err := NewScheduler(f.stores.Tenants, f.jobs).Schedule(ctx, f.tenant.TenantID)
		require.NoError(t, err)

		w, err := worker.New(f.jobs, worker.Config{Queue: Queue})
		require.NoError(t, err)
		w.Register(JobKind, f.orch)

		n, err := w.ProcessOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		job, err := f.jobs.Get(ctx, handle.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateCompleted, job.State)

		f.requireNothingLeft(t, r1.ResourceID)
		require.Len(t, f.notifier.summaries, 1)
	})

	t.Run("malformed payload is permanent", func(t *testing.T) {
		f := newFixture(t, Config{})

		err := f.orch.Handle(ctx, &models.Job{Payload: []byte("not json")})
		var permanent *backoff.PermanentError
		require.ErrorAs(t, err, &permanent)

		err = f.orch.Handle(ctx, &models.Job{Payload: []byte(`{}`)})
		require.ErrorAs(t, err, &permanent)
	})
}
