package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/projectkeeper"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Resource lifecycle metrics
	ResourcesCreatedTotal     metric.Int64Counter
	ResourcesUpdatedTotal     metric.Int64Counter
	ResourcesSoftDeletedTotal metric.Int64Counter
	ResourcesRestoredTotal    metric.Int64Counter
	ResourcesDestroyedTotal   metric.Int64Counter
	InconsistentStatesTotal   metric.Int64Counter
	PolicyRejectionsTotal     metric.Int64Counter

	// Revision metrics
	RevisionsCapturedTotal metric.Int64Counter
	RevisionBytes          metric.Int64Histogram

	// Access code metrics
	AccessCodesGeneratedTotal metric.Int64Counter
	AccessCodeCollisionsTotal metric.Int64Counter
	AccessCodeExhaustedTotal  metric.Int64Counter

	// Teardown metrics
	TeardownsScheduledTotal metric.Int64Counter
	TeardownsCompletedTotal metric.Int64Counter
	TeardownsFailedTotal    metric.Int64Counter
	TeardownDuration        metric.Float64Histogram
	TeardownStepRetries     metric.Int64Counter

	// Queue metrics
	JobsEnqueuedTotal  metric.Int64Counter
	JobsDequeuedTotal  metric.Int64Counter
	JobsCompletedTotal metric.Int64Counter
	JobsReleasedTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Resource lifecycle metrics
	m.ResourcesCreatedTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.created.total",
		metric.WithDescription("Total number of resources created"),
		metric.WithUnit("{resource}"),
	)

	m.ResourcesUpdatedTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.updated.total",
		metric.WithDescription("Total number of resource updates committed"),
		metric.WithUnit("{resource}"),
	)

	m.ResourcesSoftDeletedTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.soft_deleted.total",
		metric.WithDescription("Total number of resources soft-deleted"),
		metric.WithUnit("{resource}"),
	)

	m.ResourcesRestoredTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.restored.total",
		metric.WithDescription("Total number of soft-deleted resources restored"),
		metric.WithUnit("{resource}"),
	)

	m.ResourcesDestroyedTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.destroyed.total",
		metric.WithDescription("Total number of resources fully destroyed"),
		metric.WithUnit("{resource}"),
	)

	m.InconsistentStatesTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.inconsistent.total",
		metric.WithDescription("Total number of resources found without a payload"),
		metric.WithUnit("{resource}"),
	)

	m.PolicyRejectionsTotal, _ = meter.Int64Counter(
		"projectkeeper.resources.policy_rejections.total",
		metric.WithDescription("Total number of operations rejected by capability or quota checks"),
		metric.WithUnit("{rejection}"),
	)

	// Revision metrics
	m.RevisionsCapturedTotal, _ = meter.Int64Counter(
		"projectkeeper.revisions.captured.total",
		metric.WithDescription("Total number of revision snapshots captured"),
		metric.WithUnit("{revision}"),
	)

	m.RevisionBytes, _ = meter.Int64Histogram(
		"projectkeeper.revisions.bytes",
		metric.WithDescription("Compressed size of revision snapshots"),
		metric.WithUnit("By"),
	)

	// Access code metrics
	m.AccessCodesGeneratedTotal, _ = meter.Int64Counter(
		"projectkeeper.access_codes.generated.total",
		metric.WithDescription("Total number of access codes generated"),
		metric.WithUnit("{code}"),
	)

	m.AccessCodeCollisionsTotal, _ = meter.Int64Counter(
		"projectkeeper.access_codes.collisions.total",
		metric.WithDescription("Total number of access code candidate collisions"),
		metric.WithUnit("{collision}"),
	)

	m.AccessCodeExhaustedTotal, _ = meter.Int64Counter(
		"projectkeeper.access_codes.exhausted.total",
		metric.WithDescription("Total number of generations that hit the retry ceiling"),
		metric.WithUnit("{failure}"),
	)

	// Teardown metrics
	m.TeardownsScheduledTotal, _ = meter.Int64Counter(
		"projectkeeper.teardowns.scheduled.total",
		metric.WithDescription("Total number of tenant teardowns scheduled"),
		metric.WithUnit("{teardown}"),
	)

	m.TeardownsCompletedTotal, _ = meter.Int64Counter(
		"projectkeeper.teardowns.completed.total",
		metric.WithDescription("Total number of tenant teardowns completed"),
		metric.WithUnit("{teardown}"),
	)

	m.TeardownsFailedTotal, _ = meter.Int64Counter(
		"projectkeeper.teardowns.failed.total",
		metric.WithDescription("Total number of tenant teardown runs aborted"),
		metric.WithUnit("{teardown}"),
	)

	m.TeardownDuration, _ = meter.Float64Histogram(
		"projectkeeper.teardowns.duration",
		metric.WithDescription("Duration of tenant teardown runs"),
		metric.WithUnit("ms"),
	)

	m.TeardownStepRetries, _ = meter.Int64Counter(
		"projectkeeper.teardowns.step_retries.total",
		metric.WithDescription("Total number of teardown step retries"),
		metric.WithUnit("{retry}"),
	)

	// Queue metrics
	m.JobsEnqueuedTotal, _ = meter.Int64Counter(
		"projectkeeper.jobs.enqueued.total",
		metric.WithDescription("Total number of jobs enqueued"),
		metric.WithUnit("{job}"),
	)

	m.JobsDequeuedTotal, _ = meter.Int64Counter(
		"projectkeeper.jobs.dequeued.total",
		metric.WithDescription("Total number of jobs dequeued"),
		metric.WithUnit("{job}"),
	)

	m.JobsCompletedTotal, _ = meter.Int64Counter(
		"projectkeeper.jobs.completed.total",
		metric.WithDescription("Total number of jobs completed"),
		metric.WithUnit("{job}"),
	)

	m.JobsReleasedTotal, _ = meter.Int64Counter(
		"projectkeeper.jobs.released.total",
		metric.WithDescription("Total number of jobs released back to queue"),
		metric.WithUnit("{job}"),
	)

	return m
}
