// Package storage archives payment receipts to the local disk or S3.
package storage

import (
	"context"
	"io"
)

type PutInput struct {
	// Key is the object name relative to the store root. Empty means a
	// random uuid with the extension taken from Filename.
	Key         string
	Filename    string
	ContentType string
	Size        int64
}

type PutResult struct {
	Key string
	URL string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}
