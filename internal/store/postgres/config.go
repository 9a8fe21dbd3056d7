package postgres

import (
	"context"
	"fmt"
	"time"
)

// JobStoreConfig holds job queue configuration for the PostgreSQL job store.
// Pool configuration is handled separately via PoolConfig.
type JobStoreConfig struct {
	// TokenSigningSecret is the secret used for HMAC signing of task tokens.
	// Must be kept secure and consistent across all worker instances.
	TokenSigningSecret []byte

	// QueryTimeoutSeconds is the maximum time a query can run before timing out.
	// Default: 10 seconds
	// Set to a negative value to rely on context deadlines only.
	QueryTimeoutSeconds int32

	// CompletedRetentionHours controls how long finished jobs are kept before the
	// background sweep removes them. 0 keeps them forever.
	CompletedRetentionHours int32
}

// Validate checks that the configuration is valid.
func (c *JobStoreConfig) Validate() error {
	if len(c.TokenSigningSecret) == 0 {
		return fmt.Errorf("token signing secret is required")
	}

	if len(c.TokenSigningSecret) < 32 {
		return fmt.Errorf("token signing secret must be at least 32 bytes")
	}

	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *JobStoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
}

// queryContext bounds ctx by the configured query timeout.
func (c *JobStoreConfig) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.QueryTimeoutSeconds)*time.Second)
}
