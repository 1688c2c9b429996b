package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the blob store abstraction used for contact photo attachments.
// Implementations must avoid using local disk and rely on streaming I/O only.

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the narrow blob store capability the intake pipeline needs:
// streamed writes with content-type metadata and streamed reads by key.
// There is deliberately no delete; attachments outlive their records.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// It returns ErrNotFound when the key was never written.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}
