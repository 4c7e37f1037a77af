package engine

import (
	"context"
	"fmt"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Collection keys
const (
	ProjectsKey     = "projects"
	ReferencesKey   = "references"
	LigandsKey      = "ligands"
	PDBRefsKey      = "pdb_refs"
	ChainRefsKey    = "chain_refs"
	InchikeyRefsKey = "inchikey_refs"
	TopologiesKey   = "topologies"
	FilesKey        = "files"
	ChunksKey       = "chunks"
	AnalysesKey     = "analyses"
	CountersKey     = "counters"
)

// CollectionSpec is the declarative description of one collection
type CollectionSpec struct {
	// Key is the stable name used across the engine
	Key string
	// Name is the collection name in the database
	Name string
	// Label is the human readable name of one document
	Label   string
	Indexes []IndexSpec
	// Blob marks the collections owned by the binary object bucket
	Blob bool
}

// Collections lists every collection in declared order. FindID scans in this order.
var Collections = []CollectionSpec{
	{
		Key: ProjectsKey, Name: "projects", Label: "project",
		Indexes: []IndexSpec{
			{Name: "accession_1", Keys: bson.D{{Key: "accession", Value: 1}}, Unique: true, Sparse: true},
			{Name: "published_1", Keys: bson.D{{Key: "published", Value: 1}}},
		},
	},
	{
		Key: ReferencesKey, Name: "references", Label: "protein reference",
		Indexes: []IndexSpec{{Name: "uniprot_1", Keys: bson.D{{Key: "uniprot", Value: 1}}, Unique: true}},
	},
	{
		Key: LigandsKey, Name: "ligands", Label: "ligand reference",
		Indexes: []IndexSpec{{Name: "pubchem_1", Keys: bson.D{{Key: "pubchem", Value: 1}}, Unique: true}},
	},
	{
		Key: PDBRefsKey, Name: "pdb_refs", Label: "PDB reference",
		Indexes: []IndexSpec{{Name: "id_1", Keys: bson.D{{Key: "id", Value: 1}}, Unique: true}},
	},
	{
		Key: ChainRefsKey, Name: "chain_refs", Label: "chain reference",
		Indexes: []IndexSpec{{Name: "sequence_1", Keys: bson.D{{Key: "sequence", Value: 1}}, Unique: true}},
	},
	{
		Key: InchikeyRefsKey, Name: "inchikey_refs", Label: "inchikey reference",
		Indexes: []IndexSpec{{Name: "inchikey_1", Keys: bson.D{{Key: "inchikey", Value: 1}}, Unique: true}},
	},
	{
		Key: TopologiesKey, Name: "topologies", Label: "topology",
		Indexes: []IndexSpec{{Name: "project_1", Keys: bson.D{{Key: "project", Value: 1}}, Unique: true}},
	},
	{
		Key: FilesKey, Name: "fs.files", Label: "file", Blob: true,
		Indexes: []IndexSpec{{Name: "metadata.project_1", Keys: bson.D{{Key: "metadata.project", Value: 1}}}},
	},
	{Key: ChunksKey, Name: "fs.chunks", Label: "file chunk", Blob: true},
	{
		Key: AnalysesKey, Name: "analyses", Label: "analysis",
		Indexes: []IndexSpec{{Name: "project_1_md_1_name_1", Keys: bson.D{
			{Key: "project", Value: 1}, {Key: "md", Value: 1}, {Key: "name", Value: 1},
		}}},
	},
	{Key: CountersKey, Name: "counters", Label: "counter"},
}

// Relationship declares that every Child document must be referenced by some Parent
type Relationship struct {
	Key         string
	Parent      string
	ParentField string
	Child       string
	ChildField  string
}

// Relationships are the parent/child pairs the orphan scan understands
var Relationships = []Relationship{
	{Key: "files", Parent: ProjectsKey, ParentField: "_id", Child: FilesKey, ChildField: "metadata.project"},
	{Key: "analyses", Parent: ProjectsKey, ParentField: "_id", Child: AnalysesKey, ChildField: "project"},
	{Key: "topologies", Parent: ProjectsKey, ParentField: "_id", Child: TopologiesKey, ChildField: "project"},
	{Key: "chunks", Parent: FilesKey, ParentField: "_id", Child: ChunksKey, ChildField: "files_id"},
}

// ReferenceKinds lists the shared reference record families
var ReferenceKinds = []models.ReferenceKind{
	{Key: ReferencesKey, Label: "protein", IDField: "uniprot", MetadataField: "REFERENCES"},
	{Key: LigandsKey, Label: "ligand", IDField: "pubchem", MetadataField: "LIGANDS"},
	{Key: PDBRefsKey, Label: "PDB", IDField: "id", MetadataField: "PDBIDS"},
	{Key: ChainRefsKey, Label: "chain", IDField: "sequence", MetadataField: "PROTSEQ"},
	{Key: InchikeyRefsKey, Label: "inchikey", IDField: "inchikey", MetadataField: "INCHIKEYS"},
}

// CollectionSpecFor returns the spec registered under key
func CollectionSpecFor(key string) (CollectionSpec, bool) {
	for _, spec := range Collections {
		if spec.Key == key {
			return spec, true
		}
	}
	return CollectionSpec{}, false
}

// RelationshipFor returns the relationship registered under key
func RelationshipFor(key string) (Relationship, bool) {
	for _, rel := range Relationships {
		if rel.Key == key {
			return rel, true
		}
	}
	return Relationship{}, false
}

// ReferenceKindFor returns the reference kind stored in the collection key
func ReferenceKindFor(key string) (models.ReferenceKind, bool) {
	for _, kind := range ReferenceKinds {
		if kind.Key == key {
			return kind, true
		}
	}
	return models.ReferenceKind{}, false
}

// collectionSet resolves collection keys to store collections
type collectionSet struct {
	store Store
}

func (c collectionSet) get(key string) Collection {
	switch key {
	case FilesKey:
		return c.store.Blobs().FilesCollection()
	case ChunksKey:
		return c.store.Blobs().ChunksCollection()
	}
	spec, ok := CollectionSpecFor(key)
	if !ok {
		panic(fmt.Sprintf("unknown collection key %q", key))
	}
	return c.store.Collection(spec.Name)
}

// bootstrap creates missing collections and adds missing indexes without touching existing ones
func (c collectionSet) bootstrap(ctx context.Context, logger *zap.SugaredLogger) error {
	existing, err := c.store.CollectionNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	for _, spec := range Collections {
		if !present[spec.Name] {
			if err := c.store.CreateCollection(ctx, spec.Name); err != nil {
				return fmt.Errorf("failed to create collection %s: %w", spec.Name, err)
			}
			logger.Infof("Created collection %s", spec.Name)
		}
		if len(spec.Indexes) == 0 {
			continue
		}

		coll := c.get(spec.Key)
		names, err := coll.IndexNames(ctx)
		if err != nil {
			return fmt.Errorf("failed to list indexes of %s: %w", spec.Name, err)
		}
		indexed := make(map[string]bool, len(names))
		for _, name := range names {
			indexed[name] = true
		}
		for _, index := range spec.Indexes {
			if indexed[index.Name] {
				continue
			}
			if err := coll.CreateIndex(ctx, index); err != nil {
				return fmt.Errorf("failed to create index %s on %s: %w", index.Name, spec.Name, err)
			}
			logger.Infof("Created index %s on %s", index.Name, spec.Name)
		}
	}
	return nil
}
