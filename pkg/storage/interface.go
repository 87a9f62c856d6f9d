package storage

import (
	"context"

	"sitemirror/pkg/models"
)

// ObjectStore persists mirrored objects. Body and metadata of one key are always
// written together, and the metadata is the authoritative record of which crawl
// run last visited a path and how deep.
type ObjectStore interface {
	// Head returns the metadata stored for key. found is false on a miss.
	Head(ctx context.Context, key string) (meta models.ObjectMeta, found bool, err error)

	// Get returns the stored body of key. A miss returns an error wrapping utils.ErrStoreMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes body and metadata of obj in a single operation
	Put(ctx context.Context, obj models.StoredObject) error

	// Close releases the backend
	Close() error
}
