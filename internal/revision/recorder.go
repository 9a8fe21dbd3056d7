// Package revision captures immutable snapshots of history tracked resources.
package revision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

var (
	ErrNotTracked       = errors.New("resource type is not history tracked")
	ErrMissingPayload   = errors.New("resource has no payload")
	ErrChecksumMismatch = errors.New("revision checksum mismatch")
)

// Content is the uncompressed state stored in a snapshot.
type Content struct {
	Name    string              `json:"name"`
	Type    models.ResourceType `json:"type"`
	Payload json.RawMessage     `json:"payload"`
}

// Recorder builds revision snapshots. The encoder and decoder are safe for concurrent use.
type Recorder struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// NewRecorder creates a recorder using the default zstd level.
func NewRecorder() (*Recorder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Recorder{enc: enc, dec: dec, now: time.Now}, nil
}

// Close releases the decoder.
func (r *Recorder) Close() {
	r.dec.Close()
}

// IsTracked reports whether updates to resources of this type produce snapshots.
func IsTracked(t models.ResourceType) bool {
	return t.HistoryTracked()
}

// Changed reports whether a tracked field differs between before and after.
// LastOpenedAt and the other bookkeeping fields never count.
func Changed(before, after *models.Resource) (bool, error) {
	if before.Name != after.Name {
		return true, nil
	}

	if before.Payload == nil || after.Payload == nil {
		return before.Payload != after.Payload, nil
	}

	a, err := before.Payload.SerializeForRevision()
	if err != nil {
		return false, fmt.Errorf("failed to serialize previous payload: %w", err)
	}

	b, err := after.Payload.SerializeForRevision()
	if err != nil {
		return false, fmt.Errorf("failed to serialize payload: %w", err)
	}

	return !bytes.Equal(a, b), nil
}

// Capture builds a snapshot of the post-update state of res. The caller persists it
// in the same transaction as the update.
func (r *Recorder) Capture(ctx context.Context, res *models.Resource, changedBy string) (*models.RevisionSnapshot, error) {
	if !IsTracked(res.Type) {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, res.Type)
	}
	if res.Payload == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, res.ResourceID)
	}

	state, err := res.Payload.SerializeForRevision()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	raw, err := json.Marshal(Content{Name: res.Name, Type: res.Type, Payload: state})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal revision content: %w", err)
	}

	snapshot := &models.RevisionSnapshot{
		RevisionID:     uuid.Must(uuid.NewV7()),
		ResourceID:     res.ResourceID,
		TenantID:       res.TenantID,
		CapturedAt:     r.now().UTC(),
		ChangedBy:      changedBy,
		Content:        r.enc.EncodeAll(raw, nil),
		Checksum:       checksum(raw),
		DownloadsCount: res.Downloads(),
	}

	telemetry.GetMetrics().RevisionsCapturedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("resource_type", string(res.Type))))
	telemetry.GetMetrics().RevisionBytes.Record(ctx, int64(len(snapshot.Content)))

	log.Ctx(ctx).Debug().
		Str("resource_id", res.ResourceID.String()).
		Str("revision_id", snapshot.RevisionID.String()).
		Int("raw_bytes", len(raw)).
		Int("compressed_bytes", len(snapshot.Content)).
		Msg("Revision captured")

	return snapshot, nil
}

// Decode decompresses a snapshot and verifies its checksum.
func (r *Recorder) Decode(snapshot *models.RevisionSnapshot) (*Content, error) {
	raw, err := r.dec.DecodeAll(snapshot.Content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress revision %s: %w", snapshot.RevisionID, err)
	}

	if got := checksum(raw); got != snapshot.Checksum {
		return nil, fmt.Errorf("%w: revision %s expected %x got %x", ErrChecksumMismatch, snapshot.RevisionID, snapshot.Checksum, got)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision %s: %w", snapshot.RevisionID, err)
	}

	return &content, nil
}

func checksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
