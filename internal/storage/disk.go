package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk stores files in a single local directory.
type Disk struct {
	root string
}

// NewDisk returns a Disk rooted at dir, creating it when missing.
func NewDisk(dir string) (*Disk, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory %s: %w", abs, err)
	}
	return &Disk{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (d *Disk) Root() string {
	return d.root
}

func (d *Disk) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, name), nil
}

// Stat implements Store.
func (d *Disk) Stat(_ context.Context, name string) (Info, error) {
	p, err := d.path(name)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if !fi.Mode().IsRegular() {
		return Info{}, ErrNotFound
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Open implements Store. The returned reader keeps its descriptor even if the
// file is unlinked while it is being read.
func (d *Disk) Open(_ context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("open %s: invalid range offset=%d length=%d", name, offset, length)
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return readCloser{Reader: io.NewSectionReader(f, offset, length), Closer: f}, nil
}

// Save implements Store. Content is written to a temporary file first so a
// reader never observes a partially uploaded file.
func (d *Disk) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", name, err)
	}
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	src := &countingReader{ctx: ctx, r: r}
	if _, err := io.Copy(tmp, src); err != nil {
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, fmt.Errorf("commit %s: %w", name, err)
	}
	tmp = nil

	return src.n, nil
}

// Delete implements Store.
func (d *Disk) Delete(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func joinRoot(root, namespace string) string {
	return filepath.Join(root, namespace)
}

var _ Store = (*Disk)(nil)
