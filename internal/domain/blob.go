package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	// Get returns ErrNotFound (wrapped) when the object does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// BlobDeleter removes objects from storage.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// VoteArchiver copies votes to cold storage before they are deleted.
type VoteArchiver interface {
	ArchiveVotes(ctx context.Context, userID string, votes []Vote) (path string, err error)
}
