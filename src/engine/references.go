package engine

import (
	"context"
	"fmt"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Annotator computes the annotation record of a protein chain sequence
type Annotator interface {
	Annotate(ctx context.Context, sequence string) (bson.M, error)
}

// AddReference stores a shared reference record. An existing record with the
// same domain id is kept or replaced according to policy. It reports whether a
// new record was inserted.
func (d *Database) AddReference(ctx context.Context, kind models.ReferenceKind, record bson.M, policy Policy) (bool, error) {
	if err := d.checkAbort(); err != nil {
		return false, err
	}
	id, ok := record[kind.IDField]
	if !ok || id == nil {
		return false, Error.New("%s reference has no %s", kind.Label, kind.IDField)
	}
	collection := d.collections.get(kind.Key)

	var existing bson.M
	found, err := collection.FindOne(ctx, bson.M{kind.IDField: id}, &existing)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if found {
		if sameValue(stripID(existing), stripID(record)) {
			return false, nil
		}
		action := ResolveConflict(policy)
		if action == ActionPrompt {
			question := fmt.Sprintf("The %s reference %v already exists with different content.", kind.Label, id)
			if action, err = askConserveOverwrite(ctx, d.prompter, question); err != nil {
				return false, err
			}
		}
		if action != ActionOverwrite {
			return false, nil
		}
		update := stripID(record)
		if _, err := collection.UpdateOne(ctx, bson.M{"_id": existing["_id"]}, bson.M{"$set": update}); err != nil {
			return false, Error.Wrap(err)
		}
		d.logger.Infof("Updated %s reference %v", kind.Label, id)
		return false, nil
	}

	document := stripID(record)
	objectID := primitive.NewObjectID()
	document["_id"] = objectID
	if err := collection.InsertOne(ctx, document); err != nil {
		return false, Error.Wrap(err)
	}
	if err := d.journal.AddEntry(kind.Label+" reference", kind.Key, objectID); err != nil {
		d.logger.Warnf("Failed to journal %s reference %v: %v", kind.Label, id, err)
	}
	d.logger.Infof("Added %s reference %v", kind.Label, id)
	return true, nil
}

// LoadChainReference annotates a chain sequence once and stores the result.
// A sequence that already has a record is left alone.
func (d *Database) LoadChainReference(ctx context.Context, sequence string, annotator Annotator) (bool, error) {
	kind, _ := ReferenceKindFor(ChainRefsKey)
	count, err := d.collections.get(ChainRefsKey).CountDocuments(ctx, bson.M{kind.IDField: sequence})
	if err != nil {
		return false, Error.Wrap(err)
	}
	if count > 0 {
		return false, nil
	}

	annotations, err := annotator.Annotate(ctx, sequence)
	if err != nil {
		return false, Error.New("failed to annotate chain: %v", err)
	}
	record := bson.M{}
	for key, value := range annotations {
		record[key] = value
	}
	record[kind.IDField] = sequence
	return d.AddReference(ctx, kind, record, PolicyConserve)
}

// DeleteReferenceIfUnused removes a reference record once no project metadata
// lists its id anymore
func (d *Database) DeleteReferenceIfUnused(ctx context.Context, kind models.ReferenceKind, id interface{}) (bool, error) {
	users, err := d.collections.get(ProjectsKey).CountDocuments(ctx, bson.M{"metadata." + kind.MetadataField: id})
	if err != nil {
		return false, Error.Wrap(err)
	}
	if users > 0 {
		return false, nil
	}
	deleted, err := d.collections.get(kind.Key).DeleteOne(ctx, bson.M{kind.IDField: id})
	if err != nil {
		return false, Error.Wrap(err)
	}
	if deleted > 0 {
		d.logger.Infof("Deleted unused %s reference %v", kind.Label, id)
	}
	return deleted > 0, nil
}

func stripID(document bson.M) bson.M {
	stripped := make(bson.M, len(document))
	for key, value := range document {
		if key != "_id" {
			stripped[key] = value
		}
	}
	return stripped
}
