package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Project struct {
	// ID is the unique identifier for the project.
	ID primitive.ObjectID `bson:"_id"`

	// Accession is the public identifier. Empty until one is issued.
	Accession string `bson:"accession,omitempty"`

	Published bool `bson:"published"`

	// Metadata holds free-form project metadata, including the reference id lists.
	Metadata bson.M `bson:"metadata"`

	// MDs is the replica list. Slots are never removed, only flagged.
	MDs []MD `bson:"mds"`

	// MDRef is the index of the reference replica, nil when no replica is active.
	MDRef *int `bson:"mdref"`

	// Files and Analyses at this level belong to the project itself.
	Files    []DataRef `bson:"files"`
	Analyses []DataRef `bson:"analyses"`
}

// MD is one replica slot. A removed slot only keeps its name.
type MD struct {
	Name     string    `bson:"name"`
	Metadata bson.M    `bson:"metadata,omitempty"`
	Files    []DataRef `bson:"files,omitempty"`
	Analyses []DataRef `bson:"analyses,omitempty"`
	Removed  bool      `bson:"removed,omitempty"`
}

// IsActive reports whether the slot still holds a live replica.
func (md MD) IsActive() bool {
	return !md.Removed
}

// DataRef points from a project or replica to a file or analysis document.
type DataRef struct {
	Name string             `bson:"name"`
	ID   primitive.ObjectID `bson:"id"`
}

type Analysis struct {
	ID      primitive.ObjectID `bson:"_id"`
	Name    string             `bson:"name"`
	Value   interface{}        `bson:"value"`
	Project primitive.ObjectID `bson:"project"`
	MD      *int               `bson:"md"`
}

// Topology is stored once per project, its fields are kept inline.
type Topology struct {
	ID      primitive.ObjectID `bson:"_id"`
	Project primitive.ObjectID `bson:"project"`
	Fields  bson.M             `bson:",inline"`
}

// FileMetadata is the metadata sub-document attached to every stored binary file.
type FileMetadata struct {
	Project primitive.ObjectID `bson:"project"`
	MD      *int               `bson:"md"`
	Digest  string             `bson:"digest,omitempty"`
}

// BinaryFile mirrors the GridFS files collection document.
type BinaryFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	ChunkSize  int32              `bson:"chunkSize"`
	UploadDate time.Time          `bson:"uploadDate"`
	Filename   string             `bson:"filename"`
	Metadata   FileMetadata       `bson:"metadata"`
}

// Counter is the singleton accession counter document.
type Counter struct {
	ID   string `bson:"_id"`
	Last int64  `bson:"last"`
}

// ReferenceKind describes one family of shared reference records.
type ReferenceKind struct {
	// Key is the collection key in the schema registry.
	Key string
	// Label is the human readable name.
	Label string
	// IDField is the domain id field inside the reference record.
	IDField string
	// MetadataField is the project metadata array listing the ids in use.
	MetadataField string
}

// MDIndex returns a pointer to the given replica index, or nil for project scope.
func MDIndex(index int) *int {
	if index < 0 {
		return nil
	}
	return &index
}
