package memstore

import (
	"context"
	"io"
	"time"

	"mddb/src/engine"
	"mddb/src/helpers"
	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BlobStore lays files out the way a GridFS bucket does, one metadata
// document plus numbered chunk documents
type BlobStore struct {
	files     *Collection
	chunks    *Collection
	chunkSize int
}

func (b *BlobStore) Upload(ctx context.Context, filename string, source io.Reader, metadata models.FileMetadata) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	buffer := make([]byte, b.chunkSize)
	var length int64
	n := 0
	for {
		read, err := io.ReadFull(source, buffer)
		if read > 0 {
			chunk := bson.M{
				"_id":      primitive.NewObjectID(),
				"files_id": id,
				"n":        int32(n),
				"data":     primitive.Binary{Data: append([]byte(nil), buffer[:read]...)},
			}
			if insertErr := b.chunks.InsertOne(ctx, chunk); insertErr != nil {
				b.chunks.deleteMany(bson.M{"files_id": id})
				return primitive.NilObjectID, insertErr
			}
			length += int64(read)
			n++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			b.chunks.deleteMany(bson.M{"files_id": id})
			return primitive.NilObjectID, err
		}
	}

	file := models.BinaryFile{
		ID:         id,
		Length:     length,
		ChunkSize:  int32(b.chunkSize),
		UploadDate: time.Now().UTC(),
		Filename:   filename,
		Metadata:   metadata,
	}
	if err := b.files.InsertOne(ctx, file); err != nil {
		b.chunks.deleteMany(bson.M{"files_id": id})
		return primitive.NilObjectID, err
	}
	return id, nil
}

func (b *BlobStore) Rename(ctx context.Context, id primitive.ObjectID, filename string) error {
	matched, err := b.files.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"filename": filename}})
	if err != nil {
		return err
	}
	if matched == 0 {
		return engine.NotFound.New("file %s", id.Hex())
	}
	return nil
}

func (b *BlobStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	deleted, err := b.files.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	b.chunks.deleteMany(bson.M{"files_id": id})
	if deleted == 0 {
		return engine.NotFound.New("file %s", id.Hex())
	}
	return nil
}

// Read reassembles the content of a stored file
func (b *BlobStore) Read(ctx context.Context, id primitive.ObjectID) ([]byte, error) {
	chunks, err := b.chunks.Find(ctx, bson.M{"files_id": id})
	if err != nil {
		return nil, err
	}
	ordered := make([][]byte, len(chunks))
	for _, chunk := range chunks {
		var decoded struct {
			N    int32  `bson:"n"`
			Data []byte `bson:"data"`
		}
		if err := helpers.DecodeDocument(chunk, &decoded); err != nil {
			return nil, err
		}
		if int(decoded.N) >= len(ordered) {
			return nil, engine.Inconsistency.New("file %s has a gap in its chunks", id.Hex())
		}
		ordered[decoded.N] = decoded.Data
	}
	var content []byte
	for _, data := range ordered {
		content = append(content, data...)
	}
	return content, nil
}

func (b *BlobStore) FilesCollection() engine.Collection {
	return b.files
}

func (b *BlobStore) ChunksCollection() engine.Collection {
	return b.chunks
}
