package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
)

// Store implements ports.ImageStore on top of an afero filesystem. Each image
// is written under a fresh UUID name that keeps the original extension, and
// the returned URL is publicPrefix joined with that name.
type Store struct {
	fs           afero.Fs
	dir          string
	publicPrefix string
	maxBytes     int64
}

// New creates dir on fs if needed. maxBytes <= 0 disables the size limit.
func New(fs afero.Fs, dir, publicPrefix string, maxBytes int64) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		fs:           fs,
		dir:          dir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		maxBytes:     maxBytes,
	}, nil
}

// NewOS stores images on the local disk.
func NewOS(dir, publicPrefix string, maxBytes int64) (*Store, error) {
	return New(afero.NewOsFs(), dir, publicPrefix, maxBytes)
}

// Save copies r into a new file. A partial file is removed on failure.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (domain.ImageRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageRef{}, err
	}

	key := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	full := filepath.Join(s.dir, key)

	f, err := s.fs.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("create %s: %w", key, err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, s.maxBytes)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("%w: image is empty", domain.ErrValidation)
	}
	if err != nil {
		_ = s.fs.Remove(full)
		return domain.ImageRef{}, err
	}

	metrics.ImageBytesStored.Add(float64(n))
	return domain.ImageRef{Key: key, URL: path.Join(s.publicPrefix, key)}, nil
}

// Delete removes the stored file. Deleting a missing image is not an error.
func (s *Store) Delete(ctx context.Context, ref domain.ImageRef) error {
	if ref.Key == "" || ref.Key != filepath.Base(ref.Key) {
		return fmt.Errorf("invalid image key %q", ref.Key)
	}
	err := s.fs.Remove(filepath.Join(s.dir, ref.Key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", ref.Key, err)
	}
	return nil
}

// Open returns the stored file for reading. Keys with path components and
// missing files both fail with domain.ErrNotFound.
func (s *Store) Open(ref domain.ImageRef) (afero.File, error) {
	if ref.Key == "" || ref.Key != filepath.Base(ref.Key) || strings.HasPrefix(ref.Key, ".") {
		return nil, fmt.Errorf("%w: image %q", domain.ErrNotFound, ref.Key)
	}
	f, err := s.fs.Open(filepath.Join(s.dir, ref.Key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: image %q", domain.ErrNotFound, ref.Key)
	}
	return f, err
}
