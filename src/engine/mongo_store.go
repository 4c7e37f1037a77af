package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultChunkSize is the GridFS chunk size used when none is configured
const DefaultChunkSize = 4 * 1024 * 1024

// MongoStore implements Store on top of a MongoDB database and its GridFS bucket
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	blobs    *gridfsBlobStore
	logger   *zap.SugaredLogger
}

// ConnectMongoStore dials the server and opens the named database
func ConnectMongoStore(ctx context.Context, uri, databaseName string, chunkSize int32, logger *zap.SugaredLogger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping %s: %w", uri, err)
	}

	store, err := NewMongoStore(client.Database(databaseName), chunkSize, logger)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store.client = client

	logger.Infof("Connected to database %s", databaseName)
	return store, nil
}

// NewMongoStore wraps an already opened database
func NewMongoStore(database *mongo.Database, chunkSize int32, logger *zap.SugaredLogger) (*MongoStore, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	bucket, err := gridfs.NewBucket(database, options.GridFSBucket().SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("failed to open file bucket: %w", err)
	}

	return &MongoStore{
		database: database,
		blobs:    &gridfsBlobStore{bucket: bucket},
		logger:   logger,
	}, nil
}

// Close disconnects the client if this store owns it
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.database.Collection(name)}
}

func (s *MongoStore) CollectionNames(ctx context.Context) ([]string, error) {
	return s.database.ListCollectionNames(ctx, bson.M{})
}

func (s *MongoStore) CreateCollection(ctx context.Context, name string) error {
	return s.database.CreateCollection(ctx, name)
}

func (s *MongoStore) Blobs() BlobStore {
	return s.blobs
}

// mongoCollection adapts *mongo.Collection to Collection
type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string {
	return c.coll.Name()
}

func (c *mongoCollection) InsertOne(ctx context.Context, document interface{}) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, result interface{}) (bool, error) {
	err := c.coll.FindOne(ctx, filter).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M) ([]bson.M, error) {
	cursor, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var documents []bson.M
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	result, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.MatchedCount, nil
}

func (c *mongoCollection) IncrementOne(ctx context.Context, filter bson.M, field string, delta int64, result interface{}) (bool, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := c.coll.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{field: delta}}, opts).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	result, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) IndexNames(ctx context.Context) ([]string, error) {
	specs, err := c.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	return names, nil
}

func (c *mongoCollection) CreateIndex(ctx context.Context, index IndexSpec) error {
	opts := options.Index().SetName(index.Name)
	if index.Unique {
		opts.SetUnique(true)
	}
	if index.Sparse {
		opts.SetSparse(true)
	}
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: index.Keys, Options: opts})
	return err
}

// gridfsBlobStore adapts a GridFS bucket to BlobStore
type gridfsBlobStore struct {
	bucket *gridfs.Bucket
}

func (b *gridfsBlobStore) Upload(ctx context.Context, filename string, source io.Reader, metadata models.FileMetadata) (primitive.ObjectID, error) {
	// The bucket upload API carries no context, only a deadline
	if deadline, ok := ctx.Deadline(); ok {
		if err := b.bucket.SetWriteDeadline(deadline); err != nil {
			return primitive.NilObjectID, err
		}
	}
	return b.bucket.UploadFromStream(filename, source, options.GridFSUpload().SetMetadata(metadata))
}

func (b *gridfsBlobStore) Rename(ctx context.Context, id primitive.ObjectID, filename string) error {
	err := b.bucket.RenameContext(ctx, id, filename)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return NotFound.New("file %s", id.Hex())
	}
	return err
}

func (b *gridfsBlobStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := b.bucket.DeleteContext(ctx, id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return NotFound.New("file %s", id.Hex())
	}
	return err
}

func (b *gridfsBlobStore) FilesCollection() Collection {
	return &mongoCollection{coll: b.bucket.GetFilesCollection()}
}

func (b *gridfsBlobStore) ChunksCollection() Collection {
	return &mongoCollection{coll: b.bucket.GetChunksCollection()}
}
