package engine

import (
	"context"
	"io"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IndexSpec describes an index a collection must carry
type IndexSpec struct {
	Name   string
	Keys   bson.D
	Unique bool
	Sparse bool
}

// Collection defines the document operations the engine relies on
type Collection interface {
	Name() string

	InsertOne(ctx context.Context, document interface{}) error

	// FindOne decodes the first match into result and reports whether one was found
	FindOne(ctx context.Context, filter bson.M, result interface{}) (bool, error)

	Find(ctx context.Context, filter bson.M) ([]bson.M, error)

	// UpdateOne applies update to the first match and returns the matched count
	UpdateOne(ctx context.Context, filter bson.M, update bson.M) (int64, error)

	// IncrementOne atomically adds delta to field and decodes the updated document
	IncrementOne(ctx context.Context, filter bson.M, field string, delta int64, result interface{}) (bool, error)

	DeleteOne(ctx context.Context, filter bson.M) (int64, error)

	CountDocuments(ctx context.Context, filter bson.M) (int64, error)

	IndexNames(ctx context.Context) ([]string, error)

	CreateIndex(ctx context.Context, index IndexSpec) error
}

// BlobStore defines the chunked binary object operations. Delete removes the
// metadata document and every chunk as one logical operation.
type BlobStore interface {
	Upload(ctx context.Context, filename string, source io.Reader, metadata models.FileMetadata) (primitive.ObjectID, error)

	Rename(ctx context.Context, id primitive.ObjectID, filename string) error

	Delete(ctx context.Context, id primitive.ObjectID) error

	FilesCollection() Collection

	ChunksCollection() Collection
}

// Store is the backing document database
type Store interface {
	Collection(name string) Collection

	CollectionNames(ctx context.Context) ([]string, error)

	CreateCollection(ctx context.Context, name string) error

	Blobs() BlobStore
}
