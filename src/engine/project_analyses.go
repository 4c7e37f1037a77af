package engine

import (
	"context"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FindAnalysis returns the analysis reference with exactly this name, or nil
func (p *Project) FindAnalysis(name string, mdIndex int) *models.DataRef {
	return p.findRef(analysisData, name, mdIndex)
}

// AddAnalysis stores an analysis document and references it at the given scope
func (p *Project) AddAnalysis(ctx context.Context, name string, value interface{}, mdIndex int) (primitive.ObjectID, error) {
	if err := p.db.checkAbort(); err != nil {
		return primitive.NilObjectID, err
	}
	if err := p.checkFreeName(analysisData, name, mdIndex); err != nil {
		return primitive.NilObjectID, err
	}

	analysis := models.Analysis{
		ID:      primitive.NewObjectID(),
		Name:    name,
		Value:   value,
		Project: p.data.ID,
		MD:      models.MDIndex(mdIndex),
	}
	if err := p.db.collections.get(AnalysesKey).InsertOne(ctx, analysis); err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}
	if err := p.db.journal.AddEntry("analysis", AnalysesKey, analysis.ID); err != nil {
		p.logger.Warnf("Failed to journal analysis %s: %v", analysis.ID.Hex(), err)
	}

	if err := p.addRef(ctx, analysisData, mdIndex, models.DataRef{Name: name, ID: analysis.ID}); err != nil {
		return primitive.NilObjectID, err
	}
	p.logger.Infof("Added analysis %s to %s", name, scopeLabel(mdIndex))
	return analysis.ID, nil
}

// GetAnalysis reads the analysis document behind a reference
func (p *Project) GetAnalysis(ctx context.Context, name string, mdIndex int) (*models.Analysis, error) {
	ref := p.FindAnalysis(name, mdIndex)
	if ref == nil {
		return nil, NotFound.New("analysis %s in %s", name, scopeLabel(mdIndex))
	}
	var analysis models.Analysis
	found, err := p.db.collections.get(AnalysesKey).FindOne(ctx, bson.M{"_id": ref.ID}, &analysis)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !found {
		return nil, Inconsistency.New("analysis %s has no backing document", name)
	}
	return &analysis, nil
}

// DeleteAnalysis removes an analysis and its reference. An analysis that is part
// of an associated group takes the whole group with it when handleAssociated is set.
func (p *Project) DeleteAnalysis(ctx context.Context, name string, mdIndex int, handleAssociated bool) error {
	return p.deleteData(ctx, analysisData, name, mdIndex, handleAssociated)
}

// RenameAnalysis changes the name of an analysis document and of its reference
func (p *Project) RenameAnalysis(ctx context.Context, name, newName string, mdIndex int) error {
	refs, err := p.refList(analysisData, mdIndex)
	if err != nil {
		return err
	}
	position := findRef(*refs, name)
	if position < 0 {
		return NotFound.New("analysis %s in %s", name, scopeLabel(mdIndex))
	}
	if err := p.checkFreeName(analysisData, newName, mdIndex); err != nil {
		return err
	}

	matched, err := p.db.collections.get(AnalysesKey).UpdateOne(ctx,
		bson.M{"_id": (*refs)[position].ID}, bson.M{"$set": bson.M{"name": newName}})
	if err != nil {
		return Error.Wrap(err)
	}
	if matched == 0 {
		p.logger.Warnf("%v", Inconsistency.New("analysis %s has no backing document, renaming the reference only", name))
	}

	(*refs)[position].Name = newName
	if err := p.persist(ctx, refField(analysisData, mdIndex)); err != nil {
		return err
	}
	p.logger.Infof("Renamed analysis %s to %s in %s", name, newName, scopeLabel(mdIndex))
	return nil
}
