package engine

import (
	"context"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func sameMD(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// backingOwner reads the owner a file or analysis document claims
func (d *Database) backingOwner(ctx context.Context, kind dataKind, id primitive.ObjectID) (primitive.ObjectID, *int, bool, error) {
	filter := bson.M{"_id": id}
	if kind == fileData {
		var file models.BinaryFile
		found, err := d.collections.get(FilesKey).FindOne(ctx, filter, &file)
		if err != nil || !found {
			return primitive.NilObjectID, nil, false, Error.Wrap(err)
		}
		return file.Metadata.Project, file.Metadata.MD, true, nil
	}

	var analysis models.Analysis
	found, err := d.collections.get(AnalysesKey).FindOne(ctx, filter, &analysis)
	if err != nil || !found {
		return primitive.NilObjectID, nil, false, Error.Wrap(err)
	}
	return analysis.Project, analysis.MD, true, nil
}

// listedBy reports whether the stored project lists id at the given scope
func (d *Database) listedBy(ctx context.Context, kind dataKind, projectID primitive.ObjectID, md *int, id primitive.ObjectID) (bool, error) {
	data, err := d.findProjectDocument(ctx, projectID.Hex())
	if err != nil || data == nil {
		return false, err
	}
	for _, ref := range scopeRefs(data, kind, md) {
		if ref.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// scopeRefs returns the references of kind a project document holds at md
func scopeRefs(data *models.Project, kind dataKind, md *int) []models.DataRef {
	if md == nil {
		if kind == fileData {
			return data.Files
		}
		return data.Analyses
	}
	if *md < 0 || *md >= len(data.MDs) {
		return nil
	}
	if kind == fileData {
		return data.MDs[*md].Files
	}
	return data.MDs[*md].Analyses
}

// deleteBacking removes the document behind ref unless it turns out to belong
// to somebody else
func (p *Project) deleteBacking(ctx context.Context, kind dataKind, ref models.DataRef, mdIndex int) error {
	owner, ownerMD, found, err := p.db.backingOwner(ctx, kind, ref.ID)
	if err != nil {
		return err
	}
	if !found {
		p.logger.Warnf("%v", Inconsistency.New("%s %s (%s) has no backing document, dropping the reference", kind, ref.Name, ref.ID.Hex()))
		return nil
	}

	if owner != p.data.ID || !sameMD(ownerMD, models.MDIndex(mdIndex)) {
		listed, err := p.db.listedBy(ctx, kind, owner, ownerMD, ref.ID)
		if err != nil {
			return err
		}
		if listed {
			p.logger.Warnf("%v", Inconsistency.New("%s %s (%s) belongs to project %s %s, only the reference is dropped",
				kind, ref.Name, ref.ID.Hex(), owner.Hex(), scopeLabel(mdOrScope(ownerMD))))
			return nil
		}
		p.logger.Warnf("%v", Inconsistency.New("%s %s (%s) claims project %s %s which does not list it, deleting it",
			kind, ref.Name, ref.ID.Hex(), owner.Hex(), scopeLabel(mdOrScope(ownerMD))))
	}

	err = p.db.deleteDocument(ctx, kind.collection(), ref.ID)
	if err != nil && !NotFound.Has(err) {
		return err
	}
	return nil
}

func mdOrScope(md *int) int {
	if md == nil {
		return ProjectScope
	}
	return *md
}

// removeRef deletes the backing document of the reference at position and
// splices it out of the cached array without persisting
func (p *Project) removeRef(ctx context.Context, kind dataKind, mdIndex int, position int) error {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return err
	}
	ref := (*refs)[position]
	if err := p.deleteBacking(ctx, kind, ref, mdIndex); err != nil {
		return err
	}
	*refs = append((*refs)[:position:position], (*refs)[position+1:]...)
	p.logger.Infof("Deleted %s %s from %s", kind, ref.Name, scopeLabel(mdIndex))
	return nil
}

// addRef appends a reference and persists the touched array
func (p *Project) addRef(ctx context.Context, kind dataKind, mdIndex int, ref models.DataRef) error {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return err
	}
	*refs = append(*refs, ref)
	return p.persist(ctx, refField(kind, mdIndex))
}

func (p *Project) findRef(kind dataKind, name string, mdIndex int) *models.DataRef {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return nil
	}
	position := findRef(*refs, name)
	if position < 0 {
		return nil
	}
	ref := (*refs)[position]
	return &ref
}

// deleteData removes one named file or analysis, or its whole associated group
func (p *Project) deleteData(ctx context.Context, kind dataKind, name string, mdIndex int, handleAssociated bool) error {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return err
	}
	position := findRef(*refs, name)
	if position < 0 {
		return NotFound.New("%s %s in %s", kind, name, scopeLabel(mdIndex))
	}

	if handleAssociated {
		label := groupLabel(kind, name)
		if label != "" && len(p.FindAssociatedData(label, mdIndex)) > 1 {
			return p.DeleteAssociatedData(ctx, label, mdIndex)
		}
	}

	if err := p.removeRef(ctx, kind, mdIndex, position); err != nil {
		return err
	}
	return p.persist(ctx, refField(kind, mdIndex))
}
