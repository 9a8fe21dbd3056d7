package commands

import (
	"errors"
	"time"
)

type Globals struct {
	Dev     bool
	Version string
}

// StoreFlags selects the relational stores and the job queue backend.
type StoreFlags struct {
	StoreType string        `help:"store type (memory or postgres)" default:"postgres" env:"KEEPER_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	TokenSigningSecret string `help:"secret key for HMAC signing of task tokens" env:"KEEPER_POSTGRES_TOKEN_SECRET"`
	JobRetentionHours  int32  `help:"hours finished jobs are kept, 0 keeps them" default:"168"`

	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"KEEPER_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresFlags) validateQueue() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.TokenSigningSecret == "" {
		return errors.New("token signing secret is required (--postgres-token-signing-secret or KEEPER_POSTGRES_TOKEN_SECRET)")
	}
	if len(s.TokenSigningSecret) < 32 {
		return errors.New("token signing secret must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}
	return nil
}

// LifecycleFlags configures the resource lifecycle service.
type LifecycleFlags struct {
	PlanFile          string `help:"YAML plan file, empty enables every type for every plan" env:"KEEPER_PLAN_FILE"`
	MediaRoot         string `help:"root directory of tenant media" default:"/var/lib/projectkeeper/media" env:"KEEPER_MEDIA_ROOT"`
	RevisionRetention string `help:"revision handling when a single resource is destroyed" default:"purge" enum:"purge,retain" env:"KEEPER_REVISION_RETENTION"`
	CodeLength        int    `help:"access code length" default:"8" env:"KEEPER_CODE_LENGTH"`
	CodeMaxAttempts   int    `help:"access code generation attempts before giving up" default:"32"`
}

// ClaimFlags selects where the per-tenant teardown claim lives.
type ClaimFlags struct {
	Backend   string `help:"claim backend (store or redis); store uses the relational store" default:"store" enum:"store,redis" env:"KEEPER_CLAIM_BACKEND"`
	Addr      string `help:"Redis address" default:"localhost:6379" env:"KEEPER_REDIS_ADDR"`
	Password  string `help:"Redis password" env:"KEEPER_REDIS_PASSWORD"`
	DB        int    `help:"Redis database" default:"0"`
	PoolSize  int    `help:"Redis pool size" default:"10"`
	KeyPrefix string `help:"Redis key prefix for claims" default:"projectkeeper:teardown:"`
}

// NotifyFlags configures teardown notifications. Without servers only the log notifier runs.
type NotifyFlags struct {
	Servers []string `help:"NATS server URLs" env:"KEEPER_NATS_SERVERS"`
	Subject string   `help:"NATS subject for tenant deletion summaries" default:"projectkeeper.tenant.deleted" env:"KEEPER_NATS_SUBJECT"`
}

type TelemetryFlags struct {
	Enabled     bool    `help:"enable OpenTelemetry export" default:"false" env:"KEEPER_TELEMETRY"`
	SampleRatio float64 `help:"trace sample ratio" default:"1" env:"KEEPER_TRACE_SAMPLE_RATIO"`
}

// TeardownFlags tunes the teardown orchestrator.
type TeardownFlags struct {
	BatchSize    int           `help:"resources destroyed per page" default:"100"`
	ClaimTTL     time.Duration `help:"lifetime of the per-tenant claim" default:"30m"`
	StepMaxTries uint          `help:"attempts per teardown step" default:"5"`
}
