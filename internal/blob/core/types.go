// Package core defines the storage contract for exported run artifacts.
// Artifacts are immutable once written; re-exporting a run replaces its
// artifacts via Delete followed by Put.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete artifact storage backend.
type Driver string

const (
	// DriverFilesystem stores artifacts under a local directory (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 stores artifacts in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps artifacts in process memory (tests).
	DriverMemory Driver = "memory"
)

// PutOptions carries optional write parameters for an artifact.
type PutOptions struct {
	ContentType string            // MIME type of the rendered artifact
	Metadata    map[string]string // small flat key-value pairs, e.g. run id
}

// SignedURLOptions configures a time-limited download URL.
type SignedURLOptions struct {
	Method  string        // only GET is supported
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes one stored run artifact. Keys follow the
// runs/<run id>/<name> convention used by the export worker.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the artifact persistence surface. The export worker writes
// rendered artifacts with Put (create-only; ErrExists signals a stale
// artifact to replace), the CLI lists and signs download URLs.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// ErrExists is returned by Put when the artifact key is already stored.
var ErrExists = errors.New("blobstore: artifact already exists")

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
