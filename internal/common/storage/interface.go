package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store used to archive submission artifacts.
type ObjectStorage interface {
	// PutObject uploads size bytes from reader. size -1 streams until EOF.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, size int64, opts PutOptions) error

	// GetObject opens a reader for an object. Caller must close it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// PutOptions carries object metadata.
type PutOptions struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
