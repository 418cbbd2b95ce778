package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one object in cold storage.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter stores objects. PutMultipart is for bodies too large to buffer.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, body io.Reader, partSize int64) error
}

// BlobReader lists and probes stored objects.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Archiver exports settled records older than a cutoff and reports how many
// it wrote.
type Archiver interface {
	ArchiveResolutions(ctx context.Context, olderThan time.Time) (int64, error)
	ArchiveChallenges(ctx context.Context, olderThan time.Time) (int64, error)
}
