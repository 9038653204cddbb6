// Package blob stores resource content outside the relational database.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when a key has no stored content.
var ErrNotFound = errors.New("blob: not found")

// Info describes stored content.
type Info struct {
	Key  string
	Size int64
}

// Storage is the content store used by the resource service.
type Storage interface {
	Write(ctx context.Context, key string, r io.Reader) (Info, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape the storage root.
func ValidateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("blob: empty key")
	}
	if trimmed != key || strings.ContainsAny(key, `/\`) || path.Clean(key) != key || key == "." || key == ".." {
		return fmt.Errorf("blob: invalid key %q", key)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
