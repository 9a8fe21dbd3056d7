// Package storage manages tenant files outside the relational store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

var ErrUnsafePath = errors.New("path escapes storage root")

// FS stores tenant media under <mediaRoot>/<tenant_id>/ on an afero filesystem.
type FS struct {
	fs        afero.Fs
	mediaRoot string
}

// NewFS creates a store rooted at mediaRoot.
func NewFS(fs afero.Fs, mediaRoot string) *FS {
	return &FS{fs: fs, mediaRoot: filepath.Clean(mediaRoot)}
}

// NewOsFS creates a store on the local disk.
func NewOsFS(mediaRoot string) *FS {
	return NewFS(afero.NewOsFs(), mediaRoot)
}

// TenantDir returns the media directory of a tenant.
func (s *FS) TenantDir(tenantID uuid.UUID) string {
	return filepath.Join(s.mediaRoot, tenantID.String())
}

// PurgeTenantStorage removes every media file of a tenant. Missing directories are fine.
func (s *FS) PurgeTenantStorage(ctx context.Context, tenantID uuid.UUID) error {
	dir := s.TenantDir(tenantID)

	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge tenant storage %s: %w", dir, err)
	}

	log.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Str("dir", dir).
		Msg("Tenant storage purged")

	return nil
}

// RemoveTenantRoot removes the tenant's own storage root directory.
func (s *FS) RemoveTenantRoot(ctx context.Context, tenant *models.Tenant) error {
	if tenant.StorageRoot == "" {
		return nil
	}

	root := filepath.Clean(tenant.StorageRoot)
	if !filepath.IsAbs(root) || root == string(filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, tenant.StorageRoot)
	}

	if err := s.fs.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove tenant root %s: %w", root, err)
	}

	return nil
}

// DeleteArtifacts removes payload artifacts stored under the tenant directory.
// Keys are relative to the tenant directory and already missing files are ignored.
func (s *FS) DeleteArtifacts(ctx context.Context, tenantID uuid.UUID, keys []string) error {
	dir := s.TenantDir(tenantID)

	for _, key := range keys {
		path := filepath.Join(dir, key)
		if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, key)
		}

		if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete artifact %s: %w", key, err)
		}
	}

	log.Ctx(ctx).Debug().
		Str("tenant_id", tenantID.String()).
		Int("artifacts", len(keys)).
		Msg("Artifacts deleted")

	return nil
}
