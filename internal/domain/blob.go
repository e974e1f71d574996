package domain

import (
	"context"
	"time"
)

// BlobObject is one object destined for cold storage. Path is relative to
// the store's key prefix.
type BlobObject struct {
	Path        string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, obj BlobObject) error
}

// BlobStat reports whether an object already exists.
type BlobStat interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies settled records older than a cutoff from the durable log
// to cold storage. Source rows are left in place.
type Archiver interface {
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
	ArchiveDecisions(ctx context.Context, before time.Time) (int64, error)
}
