// Package blobstore stores raw assessment exports (CSV files) on the local
// filesystem or in an S3-compatible bucket. Record sources read exports from
// it and the snapshot command writes them.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// Store is a minimal key/value blob store.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

// validateKey rejects empty keys and keys that would escape the store root.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return ErrInvalidKey
		}
	}
	return nil
}
