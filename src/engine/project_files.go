package engine

import (
	"context"
	"io"

	"mddb/src/helpers"
	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FrameSource yields the encoded frames of a trajectory one by one and
// returns io.EOF once exhausted
type FrameSource interface {
	Next() ([]byte, error)
}

// FindFile returns the file reference with exactly this name, or nil
func (p *Project) FindFile(name string, mdIndex int) *models.DataRef {
	return p.findRef(fileData, name, mdIndex)
}

// AddFile streams source into the blob store and references it at the given scope
func (p *Project) AddFile(ctx context.Context, name string, source io.Reader, mdIndex int) (primitive.ObjectID, error) {
	if err := p.db.checkAbort(); err != nil {
		return primitive.NilObjectID, err
	}
	if err := p.checkFreeName(fileData, name, mdIndex); err != nil {
		return primitive.NilObjectID, err
	}

	digest := helpers.NewDigestReader(source)
	metadata := models.FileMetadata{Project: p.data.ID, MD: models.MDIndex(mdIndex)}
	id, err := p.db.store.Blobs().Upload(ctx, name, digest, metadata)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := p.db.journal.AddEntry("file", FilesKey, id); err != nil {
		p.logger.Warnf("Failed to journal file %s: %v", id.Hex(), err)
	}

	_, err = p.db.collections.get(FilesKey).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"metadata.digest": digest.Sum()}})
	if err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}

	if err := p.addRef(ctx, fileData, mdIndex, models.DataRef{Name: name, ID: id}); err != nil {
		return primitive.NilObjectID, err
	}
	p.logger.Infof("Added file %s (%d bytes) to %s", name, digest.Size(), scopeLabel(mdIndex))
	return id, nil
}

// AddTrajectory concatenates the frames of a trajectory into one stored file
func (p *Project) AddTrajectory(ctx context.Context, name string, frames FrameSource, mdIndex int) (primitive.ObjectID, error) {
	if err := p.checkFreeName(fileData, name, mdIndex); err != nil {
		return primitive.NilObjectID, err
	}

	reader, writer := io.Pipe()
	go func() {
		count := 0
		for {
			frame, err := frames.Next()
			if err == io.EOF {
				if count == 0 {
					writer.CloseWithError(DecodeError.New("trajectory %s has no frames", name))
					return
				}
				writer.Close()
				return
			}
			if err != nil {
				writer.CloseWithError(DecodeError.Wrap(err))
				return
			}
			count++
			if _, err := writer.Write(frame); err != nil {
				return
			}
		}
	}()

	id, err := p.AddFile(ctx, name, reader, mdIndex)
	// Unblocks the producer when the upload stopped early
	reader.CloseWithError(io.ErrClosedPipe)
	return id, err
}

// DeleteFile removes a file and its reference. A file that is part of an
// associated group takes the whole group with it when handleAssociated is set.
func (p *Project) DeleteFile(ctx context.Context, name string, mdIndex int, handleAssociated bool) error {
	return p.deleteData(ctx, fileData, name, mdIndex, handleAssociated)
}

// RenameFile changes the name of a file and of its reference
func (p *Project) RenameFile(ctx context.Context, name, newName string, mdIndex int) error {
	refs, err := p.refList(fileData, mdIndex)
	if err != nil {
		return err
	}
	position := findRef(*refs, name)
	if position < 0 {
		return NotFound.New("file %s in %s", name, scopeLabel(mdIndex))
	}
	if err := p.checkFreeName(fileData, newName, mdIndex); err != nil {
		return err
	}

	err = p.db.store.Blobs().Rename(ctx, (*refs)[position].ID, newName)
	if NotFound.Has(err) {
		p.logger.Warnf("%v", Inconsistency.New("file %s has no backing document, renaming the reference only", name))
	} else if err != nil {
		return err
	}

	(*refs)[position].Name = newName
	if err := p.persist(ctx, refField(fileData, mdIndex)); err != nil {
		return err
	}
	p.logger.Infof("Renamed file %s to %s in %s", name, newName, scopeLabel(mdIndex))
	return nil
}

// FileDigest returns the content digest recorded for a stored file
func (p *Project) FileDigest(ctx context.Context, name string, mdIndex int) (string, error) {
	ref := p.FindFile(name, mdIndex)
	if ref == nil {
		return "", NotFound.New("file %s in %s", name, scopeLabel(mdIndex))
	}
	var file models.BinaryFile
	found, err := p.db.collections.get(FilesKey).FindOne(ctx, bson.M{"_id": ref.ID}, &file)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if !found {
		return "", Inconsistency.New("file %s has no backing document", name)
	}
	return file.Metadata.Digest, nil
}

func (p *Project) checkFreeName(kind dataKind, name string, mdIndex int) error {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return err
	}
	if findRef(*refs, name) >= 0 {
		return Conflict.New("%s %s already exists in %s", kind, name, scopeLabel(mdIndex))
	}
	return nil
}
