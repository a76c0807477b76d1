package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
)

// File stores the session as a JSON document on disk, readable only by the
// owner. Writes go to a temporary file in the same directory and are renamed
// into place, so a reader sees the old record or the new one.
type File struct {
	path string
}

// NewFile returns a store backed by the file at path. Parent directories are
// created on first write.
func NewFile(path string) *File {
	return &File{path: filepath.Clean(path)}
}

// Path returns the location of the session file.
func (f *File) Path() string { return f.path }

func (f *File) Read(ctx context.Context) (Session, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slogx.FromContext(ctx).Warn("token store read failed", "path", f.path, "err", err)
		}
		return Session{}, false
	}

	s, ok := Decode(data)
	if !ok {
		slogx.FromContext(ctx).Debug("token store record unreadable, treating as absent", "path", f.path)
	}
	return s, ok
}

func (f *File) Write(_ context.Context, s Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure below; after a successful rename
	// this is a no-op.
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("tokenstore: chmod temp: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("tokenstore: replace record: %w", err)
	}

	return nil
}

func (f *File) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenstore: clear: %w", err)
	}
	return nil
}
