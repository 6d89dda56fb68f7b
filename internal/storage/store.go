// Package storage keeps media files (videos, logos, profile pictures) on local
// disk or in an S3-compatible bucket behind a common Store interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reelhouse/backend/internal/config"
)

var (
	// ErrNotFound indicates the named file does not exist.
	ErrNotFound = errors.New("media file not found")
	// ErrInvalidName indicates a name that could escape the store root.
	ErrInvalidName = errors.New("invalid media file name")
)

// Namespaces used for uploaded media.
const (
	NamespaceVideos          = "videos"
	NamespaceLogos           = "logos"
	NamespaceProfilePictures = "profile-pics"
)

// Info describes a stored file.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Store reads and writes immutable media files addressed by a flat name.
type Store interface {
	// Stat returns the size of the named file or ErrNotFound.
	Stat(ctx context.Context, name string) (Info, error)
	// Open returns a reader over length bytes starting at offset.
	Open(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error)
	// Save streams r into a new file and returns the number of bytes written.
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	// Delete removes the named file.
	Delete(ctx context.Context, name string) error
}

// Buckets groups the stores backing each media namespace.
type Buckets struct {
	Videos          Store
	Logos           Store
	ProfilePictures Store
}

// ValidateName rejects names that are empty, contain path separators or NUL
// bytes, or start with a dot. Dot names cover the directory entries and the
// in-progress temp files a store writes before committing.
func ValidateName(name string) error {
	switch {
	case name == "", strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open builds the namespace stores for the configured backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Buckets, error) {
	switch cfg.Backend {
	case config.StorageDisk, "":
		var buckets Buckets
		for _, target := range []struct {
			namespace string
			dst       *Store
		}{
			{NamespaceVideos, &buckets.Videos},
			{NamespaceLogos, &buckets.Logos},
			{NamespaceProfilePictures, &buckets.ProfilePictures},
		} {
			disk, err := NewDisk(joinRoot(cfg.MediaRoot, target.namespace))
			if err != nil {
				return Buckets{}, err
			}
			*target.dst = disk
		}
		return buckets, nil
	case config.StorageS3:
		client, err := NewS3Client(ctx, cfg.ObjectStore)
		if err != nil {
			return Buckets{}, err
		}
		prefix := strings.Trim(cfg.ObjectStore.Prefix, "/")
		return Buckets{
			Videos:          NewS3(client, cfg.ObjectStore.Bucket, joinKey(prefix, NamespaceVideos)),
			Logos:           NewS3(client, cfg.ObjectStore.Bucket, joinKey(prefix, NamespaceLogos)),
			ProfilePictures: NewS3(client, cfg.ObjectStore.Bucket, joinKey(prefix, NamespaceProfilePictures)),
		}, nil
	default:
		return Buckets{}, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

type countingReader struct {
	ctx context.Context
	r   io.Reader
	n   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
