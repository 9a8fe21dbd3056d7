// Package accesscode generates the short public codes that publish a resource.
package accesscode

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

const (
	DefaultCodeLength  = 8
	DefaultMaxAttempts = 32
)

// ErrCodeSpaceExhausted is returned when every candidate up to MaxAttempts is taken.
var ErrCodeSpaceExhausted = errors.New("access code space exhausted")

// Config controls candidate length and the retry ceiling.
type Config struct {
	CodeLength  int
	MaxAttempts int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}

// Options describe the code being generated.
type Options struct {
	Name      string
	IsPreview bool
	IsPublic  bool
	Online    bool
	// Salt is mixed into the candidate hash, a random value is used when empty.
	Salt string
}

// CandidateFunc derives the base candidate for a resource.
type CandidateFunc func(res *models.Resource, name, salt string, length int) string

// Generator allocates access codes that are unique among live codes.
type Generator struct {
	codes     store.AccessCodeStore
	cfg       Config
	candidate CandidateFunc
	now       func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithCandidateFunc replaces the hash based candidate derivation.
func WithCandidateFunc(fn CandidateFunc) Option {
	return func(g *Generator) {
		g.candidate = fn
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a generator backed by the given access code store.
func New(codes store.AccessCodeStore, cfg Config, opts ...Option) *Generator {
	cfg.ApplyDefaults()

	g := &Generator{
		codes:     codes,
		cfg:       cfg,
		candidate: HashCandidate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// HashCandidate returns base58(sha256(tenant|resource|name|salt)) truncated to length.
func HashCandidate(res *models.Resource, name, salt string, length int) string {
	h := sha256.New()
	h.Write(res.TenantID[:])
	h.Write([]byte{'|'})
	h.Write(res.ResourceID[:])
	h.Write([]byte{'|'})
	h.Write([]byte(name))
	h.Write([]byte{'|'})
	h.Write([]byte(salt))

	encoded := base58.Encode(h.Sum(nil))
	if len(encoded) > length {
		encoded = encoded[:length]
	}

	return encoded
}

// Generate stores a new access code for res. Candidates that collide with a live code
// get an incrementing numeric suffix; the store insert decides uniqueness. Store errors
// other than a code conflict, including store.ErrPreviewCodeExists, are returned as is.
func (g *Generator) Generate(ctx context.Context, res *models.Resource, opts Options) (*models.AccessCode, error) {
	metrics := telemetry.GetMetrics()

	salt := opts.Salt
	if salt == "" {
		salt = uuid.NewString()
	}

	base := g.candidate(res, opts.Name, salt, g.cfg.CodeLength)
	candidate := base

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		taken, err := g.codes.CodeExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to check access code: %w", err)
		}

		if !taken {
			code := &models.AccessCode{
				AccessCodeID: uuid.Must(uuid.NewV7()),
				ResourceID:   res.ResourceID,
				TenantID:     res.TenantID,
				Name:         opts.Name,
				Code:         candidate,
				IsPreview:    opts.IsPreview,
				IsPublic:     opts.IsPublic,
				Online:       opts.Online,
				CreatedAt:    g.now().UTC(),
			}

			err = g.codes.Create(ctx, code)
			if err == nil {
				metrics.AccessCodesGeneratedTotal.Add(ctx, 1,
					metric.WithAttributes(attribute.Bool("preview", opts.IsPreview)))

				log.Ctx(ctx).Debug().
					Str("resource_id", res.ResourceID.String()).
					Str("code", candidate).
					Int("attempt", attempt).
					Msg("Access code generated")

				return code, nil
			}
			if !errors.Is(err, store.ErrAccessCodeConflict) {
				return nil, err
			}
		}

		metrics.AccessCodeCollisionsTotal.Add(ctx, 1)
		candidate = base + strconv.Itoa(attempt)
	}

	metrics.AccessCodeExhaustedTotal.Add(ctx, 1)

	log.Ctx(ctx).Error().
		Str("tenant_id", res.TenantID.String()).
		Str("resource_id", res.ResourceID.String()).
		Str("base_candidate", base).
		Int("max_attempts", g.cfg.MaxAttempts).
		Msg("Access code space exhausted")

	return nil, fmt.Errorf("%w: resource %s after %d attempts", ErrCodeSpaceExhausted, res.ResourceID, g.cfg.MaxAttempts)
}
