package engine

import (
	"context"
	"fmt"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GetTopology returns the topology of the project, or nil when it has none
func (p *Project) GetTopology(ctx context.Context) (*models.Topology, error) {
	var topology models.Topology
	found, err := p.db.collections.get(TopologiesKey).FindOne(ctx, bson.M{"project": p.data.ID}, &topology)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !found {
		return nil, nil
	}
	return &topology, nil
}

// SetTopology stores the topology of the project. An existing different one is
// kept or replaced according to policy. It reports whether anything was written.
func (p *Project) SetTopology(ctx context.Context, fields bson.M, policy Policy) (bool, error) {
	if err := p.db.checkAbort(); err != nil {
		return false, err
	}
	existing, err := p.GetTopology(ctx)
	if err != nil {
		return false, err
	}

	document := stripID(fields)
	delete(document, "project")

	if existing != nil {
		if sameValue(stripID(existing.Fields), document) {
			return false, nil
		}
		action := ResolveConflict(policy)
		if action == ActionPrompt {
			question := fmt.Sprintf("Project %s already has a different topology.", p.data.Accession)
			if action, err = askConserveOverwrite(ctx, p.db.prompter, question); err != nil {
				return false, err
			}
		}
		if action != ActionOverwrite {
			return false, nil
		}
		if err := p.db.deleteDocument(ctx, TopologiesKey, existing.ID); err != nil && !NotFound.Has(err) {
			return false, err
		}
	}

	topology := models.Topology{ID: primitive.NewObjectID(), Project: p.data.ID, Fields: document}
	if err := p.db.collections.get(TopologiesKey).InsertOne(ctx, topology); err != nil {
		return false, Error.Wrap(err)
	}
	if err := p.db.journal.AddEntry("topology", TopologiesKey, topology.ID); err != nil {
		p.logger.Warnf("Failed to journal topology %s: %v", topology.ID.Hex(), err)
	}
	p.logger.Infof("Stored topology %s", topology.ID.Hex())
	return true, nil
}

// DeleteTopology removes the topology of the project and reports whether there was one
func (p *Project) DeleteTopology(ctx context.Context) (bool, error) {
	existing, err := p.GetTopology(ctx)
	if err != nil || existing == nil {
		return false, err
	}
	if err := p.db.deleteDocument(ctx, TopologiesKey, existing.ID); err != nil && !NotFound.Has(err) {
		return false, err
	}
	p.logger.Infof("Deleted topology %s", existing.ID.Hex())
	return true, nil
}
