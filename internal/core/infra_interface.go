package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/docloader/internal/models"
)

// DbClient defines the persistence operations for the load history.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	RecordLoad(ctx context.Context, rec *models.LoadRecord) error
	GetLoadRecord(ctx context.Context, id string) (*models.LoadRecord, error)
	ListLoadRecords(ctx context.Context, limit int) ([]models.LoadRecord, error)

	Close() error
}

// ErrObjectNotFound is returned by ObjectClient implementations for a missing bucket or key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectClient defines the reads the worker needs from S3 or any object storage.
type ObjectClient interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	// GetRange reads length bytes starting at offset.
	GetRange(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error)
	ObjectSize(ctx context.Context, bucket, key string) (int64, error)
}
