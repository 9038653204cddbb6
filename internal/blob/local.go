package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage keeps content as files under a root directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the root directory when missing.
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, errAbs := filepath.Abs(root)
	if errAbs != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", errAbs)
	}
	if errMkdir := os.MkdirAll(abs, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("blob: create root: %w", errMkdir)
	}
	return &LocalStorage{root: abs}, nil
}

// Write stores r under key, replacing existing content atomically.
func (s *LocalStorage) Write(ctx context.Context, key string, r io.Reader) (Info, error) {
	if errKey := ValidateKey(key); errKey != nil {
		return Info{}, errKey
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return Info{}, errCtx
	}

	tmp, errTemp := os.CreateTemp(s.root, ".upload-*")
	if errTemp != nil {
		return Info{}, fmt.Errorf("blob: create temp: %w", errTemp)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	size, errCopy := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if errClose := tmp.Close(); errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		return Info{}, fmt.Errorf("blob: write %s: %w", key, errCopy)
	}
	if errRename := os.Rename(tmpName, filepath.Join(s.root, key)); errRename != nil {
		return Info{}, fmt.Errorf("blob: commit %s: %w", key, errRename)
	}
	return Info{Key: key, Size: size}, nil
}

// Read opens the content stored under key.
func (s *LocalStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if errKey := ValidateKey(key); errKey != nil {
		return nil, errKey
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	f, errOpen := os.Open(filepath.Join(s.root, key))
	if errOpen != nil {
		if errors.Is(errOpen, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: open %s: %w", key, errOpen)
	}
	return f, nil
}

// Delete removes the content stored under key. Missing content is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if errKey := ValidateKey(key); errKey != nil {
		return errKey
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}
	if errRemove := os.Remove(filepath.Join(s.root, key)); errRemove != nil && !errors.Is(errRemove, fs.ErrNotExist) {
		return fmt.Errorf("blob: delete %s: %w", key, errRemove)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if errCtx := c.ctx.Err(); errCtx != nil {
		return 0, errCtx
	}
	return c.r.Read(p)
}
