package engine

import (
	"context"
	"fmt"

	"mddb/src/models"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
)

// AddMDirectory appends a new replica and returns its index. The first replica
// of a project becomes the reference one.
func (p *Project) AddMDirectory(ctx context.Context, name string, metadata bson.M) (int, error) {
	if err := p.db.checkAbort(); err != nil {
		return 0, err
	}
	for _, md := range p.data.MDs {
		if md.IsActive() && md.Name == name {
			return 0, Conflict.New("md %q already exists in project %s", name, p.data.Accession)
		}
	}

	index := len(p.data.MDs)
	p.data.MDs = append(p.data.MDs, models.MD{Name: name, Metadata: metadata})
	if p.data.MDRef == nil {
		p.data.MDRef = models.MDIndex(index)
	}
	p.refreshMDCount()

	if err := p.persist(ctx, "mds", "mdref", "metadata"); err != nil {
		return 0, err
	}
	p.logger.Infof("Added md %d (%s)", index, name)
	return index, nil
}

// RemoveMDirectory deletes every file and analysis of a replica and flags the
// slot as removed. When the reference replica goes a new one is chosen, by the
// operator unless forced.
func (p *Project) RemoveMDirectory(ctx context.Context, mdIndex int, forced bool) error {
	md, err := p.md(mdIndex)
	if err != nil {
		return err
	}

	fileNames := refNames(md.Files)
	for _, name := range fileNames {
		// A group deletion may already have taken it
		if p.FindFile(name, mdIndex) == nil {
			continue
		}
		if err := p.DeleteFile(ctx, name, mdIndex, true); err != nil {
			return err
		}
	}
	analysisNames := refNames(p.data.MDs[mdIndex].Analyses)
	for _, name := range analysisNames {
		if p.FindAnalysis(name, mdIndex) == nil {
			continue
		}
		if err := p.DeleteAnalysis(ctx, name, mdIndex, true); err != nil {
			return err
		}
	}

	name := p.data.MDs[mdIndex].Name
	p.data.MDs[mdIndex] = models.MD{Name: name, Removed: true}

	if p.data.MDRef != nil && *p.data.MDRef == mdIndex {
		if err := p.reassignReference(ctx, forced); err != nil {
			return err
		}
	}
	p.refreshMDCount()

	if err := p.persist(ctx, "mds", "mdref", "metadata"); err != nil {
		return err
	}
	p.logger.Infof("Removed md %d (%s)", mdIndex, name)
	return nil
}

func (p *Project) reassignReference(ctx context.Context, forced bool) error {
	active := p.ActiveMDs()
	switch {
	case len(active) == 0:
		p.data.MDRef = nil
		return nil
	case forced || len(active) == 1:
		p.data.MDRef = models.MDIndex(active[0])
		return nil
	}

	question := fmt.Sprintf("The reference md of project %s was removed. Which md should become the reference?", p.data.Accession)
	chosen, err := chooseIndex(ctx, p.db.prompter, question, active)
	if err != nil {
		return err
	}
	p.data.MDRef = models.MDIndex(chosen)
	return nil
}

func refNames(refs []models.DataRef) []string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}

// DeleteProject removes the project with its topology, files, analyses and
// replicas, gives back its accession when it was the last one issued and
// garbage collects the references nobody uses anymore.
func (p *Project) DeleteProject(ctx context.Context) error {
	// Nothing was touched yet, plain errors are safe until here
	if _, err := p.DeleteTopology(ctx); err != nil {
		return err
	}

	fail := func(err error) error {
		return Fatal.New("deletion of project %s stopped halfway: %v; %s", p.data.Accession, err, fatalCleanupHint)
	}

	for _, name := range refNames(p.data.Files) {
		if p.FindFile(name, ProjectScope) == nil {
			continue
		}
		if err := p.DeleteFile(ctx, name, ProjectScope, true); err != nil {
			return fail(err)
		}
	}
	for _, name := range refNames(p.data.Analyses) {
		if p.FindAnalysis(name, ProjectScope) == nil {
			continue
		}
		if err := p.DeleteAnalysis(ctx, name, ProjectScope, true); err != nil {
			return fail(err)
		}
	}
	for _, index := range p.ActiveMDs() {
		if err := p.RemoveMDirectory(ctx, index, true); err != nil {
			return fail(err)
		}
	}

	deleted, err := p.db.collections.get(ProjectsKey).DeleteOne(ctx, bson.M{"_id": p.data.ID})
	if err != nil {
		return fail(err)
	}
	if deleted == 0 {
		return fail(NotFound.New("project %s", p.data.ID.Hex()))
	}

	if p.data.Accession != "" {
		if _, err := p.db.releaseAccession(ctx, p.data.Accession); err != nil {
			p.logger.Errorf("Failed to release accession %s: %v", p.data.Accession, err)
		}
	}

	var group errs.Group
	for _, kind := range ReferenceKinds {
		for _, id := range metadataIDs(p.data.Metadata[kind.MetadataField]) {
			if _, err := p.db.DeleteReferenceIfUnused(ctx, kind, id); err != nil {
				group.Add(err)
			}
		}
	}
	if err := group.Err(); err != nil {
		return fail(err)
	}

	p.logger.Infof("Deleted project %s", p.data.Accession)
	return nil
}

// metadataIDs flattens a metadata reference list into its ids
func metadataIDs(value interface{}) []interface{} {
	switch list := value.(type) {
	case nil:
		return nil
	case bson.A:
		return []interface{}(list)
	case []interface{}:
		return list
	case []string:
		ids := make([]interface{}, len(list))
		for i, id := range list {
			ids[i] = id
		}
		return ids
	}
	return []interface{}{value}
}
