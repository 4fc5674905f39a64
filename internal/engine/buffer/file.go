package buffer

import (
	"context"
	"errors"
	"os"
	"sync"
)

// ErrNoPath is returned when saving a buffer that has no backing path.
var ErrNoPath = errors.New("buffer has no path")

// FileAdapter supplies a buffer's path, modified state and save behavior.
// Remote-backed buffers install their own adapter instead of patching the
// buffer.
type FileAdapter interface {
	Path() string
	IsModified(b *Buffer) bool
	Save(ctx context.Context, b *Buffer) error
}

// LocalFile is the default adapter for buffers backed by a file on disk.
type LocalFile struct {
	mu    sync.Mutex
	path  string
	saved string
}

// NewLocalFile creates an adapter for path whose on-disk content is saved.
func NewLocalFile(path, saved string) *LocalFile {
	return &LocalFile{path: path, saved: saved}
}

// Path returns the file path.
func (f *LocalFile) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// IsModified reports whether the buffer differs from the last saved text.
func (f *LocalFile) IsModified(b *Buffer) bool {
	text := b.Text()
	f.mu.Lock()
	defer f.mu.Unlock()
	return text != f.saved
}

// Save writes the buffer to its path.
func (f *LocalFile) Save(ctx context.Context, b *Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		return ErrNoPath
	}

	text := b.Text()
	if err := os.WriteFile(f.path, []byte(text), 0o644); err != nil {
		return err
	}
	f.saved = text
	return nil
}
