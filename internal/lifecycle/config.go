package lifecycle

import (
	"fmt"
)

// RetentionPolicy decides what happens to revision snapshots when a single resource is destroyed.
type RetentionPolicy string

const (
	RetentionPurge  RetentionPolicy = "purge"
	RetentionRetain RetentionPolicy = "retain"
)

// Config holds lifecycle behaviour switches.
type Config struct {
	RevisionRetention RetentionPolicy
	// SweepBatchSize bounds SweepOrphans when called with limit 0.
	SweepBatchSize int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.RevisionRetention == "" {
		c.RevisionRetention = RetentionPurge
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 100
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.RevisionRetention {
	case RetentionPurge, RetentionRetain:
	default:
		return fmt.Errorf("invalid revision retention %q: must be %q or %q", c.RevisionRetention, RetentionPurge, RetentionRetain)
	}
	return nil
}

type destroyOptions struct {
	retention RetentionPolicy
}

// DestroyOption adjusts a single DestroyFully call.
type DestroyOption func(*destroyOptions)

// WithRevisionRetention overrides the configured retention policy.
func WithRevisionRetention(policy RetentionPolicy) DestroyOption {
	return func(o *destroyOptions) {
		o.retention = policy
	}
}
