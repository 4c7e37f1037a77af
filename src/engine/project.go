package engine

import (
	"context"
	"fmt"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ProjectScope addresses the project itself instead of one of its replicas
const ProjectScope = -1

// mdCountField is the project metadata field holding the number of active replicas
const mdCountField = "mdcount"

// dataKind tells files and analyses apart where they are handled alike
type dataKind int

const (
	fileData dataKind = iota
	analysisData
)

func (k dataKind) String() string {
	if k == fileData {
		return "file"
	}
	return "analysis"
}

func (k dataKind) collection() string {
	if k == fileData {
		return FilesKey
	}
	return AnalysesKey
}

// Project is a handle over one project document. It caches the document and
// writes back only the fields an operation touched.
type Project struct {
	db   *Database
	data *models.Project
	// decisions remembers conflict answers per associated group and scope
	decisions map[string]Action
	logger    *zap.SugaredLogger
}

func newProject(db *Database, data *models.Project) *Project {
	if data.Metadata == nil {
		data.Metadata = bson.M{}
	}
	return &Project{
		db:        db,
		data:      data,
		decisions: make(map[string]Action),
		logger:    db.logger.With("project", data.ID.Hex()),
	}
}

func (p *Project) ID() primitive.ObjectID {
	return p.data.ID
}

func (p *Project) Accession() string {
	return p.data.Accession
}

func (p *Project) Published() bool {
	return p.data.Published
}

// Data returns a copy of the cached document
func (p *Project) Data() models.Project {
	return *p.data
}

// Metadata returns the cached project metadata
func (p *Project) Metadata() bson.M {
	return p.data.Metadata
}

// MDRef returns the reference replica index, nil when no replica is active
func (p *Project) MDRef() *int {
	return p.data.MDRef
}

// MDs returns a copy of the replica slots
func (p *Project) MDs() []models.MD {
	mds := make([]models.MD, len(p.data.MDs))
	copy(mds, p.data.MDs)
	return mds
}

// ActiveMDs returns the indexes of the replicas that were not removed
func (p *Project) ActiveMDs() []int {
	active := make([]int, 0, len(p.data.MDs))
	for i, md := range p.data.MDs {
		if md.IsActive() {
			active = append(active, i)
		}
	}
	return active
}

// MDCount returns the number of active replicas
func (p *Project) MDCount() int {
	return len(p.ActiveMDs())
}

// Files returns a copy of the file references at the given scope
func (p *Project) Files(mdIndex int) ([]models.DataRef, error) {
	return p.listRefs(fileData, mdIndex)
}

// Analyses returns a copy of the analysis references at the given scope
func (p *Project) Analyses(mdIndex int) ([]models.DataRef, error) {
	return p.listRefs(analysisData, mdIndex)
}

func (p *Project) listRefs(kind dataKind, mdIndex int) ([]models.DataRef, error) {
	refs, err := p.refList(kind, mdIndex)
	if err != nil {
		return nil, err
	}
	list := make([]models.DataRef, len(*refs))
	copy(list, *refs)
	return list, nil
}

// md returns the active replica at index
func (p *Project) md(mdIndex int) (*models.MD, error) {
	if mdIndex < 0 || mdIndex >= len(p.data.MDs) {
		return nil, NotFound.New("md %d in project %s", mdIndex, p.data.Accession)
	}
	md := &p.data.MDs[mdIndex]
	if !md.IsActive() {
		return nil, NotFound.New("md %d in project %s was removed", mdIndex, p.data.Accession)
	}
	return md, nil
}

// refList returns the reference array of kind at the given scope
func (p *Project) refList(kind dataKind, mdIndex int) (*[]models.DataRef, error) {
	if mdIndex == ProjectScope {
		if kind == fileData {
			return &p.data.Files, nil
		}
		return &p.data.Analyses, nil
	}
	md, err := p.md(mdIndex)
	if err != nil {
		return nil, err
	}
	if kind == fileData {
		return &md.Files, nil
	}
	return &md.Analyses, nil
}

// refField is the project field to persist after touching kind at scope
func refField(kind dataKind, mdIndex int) string {
	if mdIndex != ProjectScope {
		return "mds"
	}
	if kind == fileData {
		return "files"
	}
	return "analyses"
}

func findRef(refs []models.DataRef, name string) int {
	for i, ref := range refs {
		if ref.Name == name {
			return i
		}
	}
	return -1
}

func scopeLabel(mdIndex int) string {
	if mdIndex == ProjectScope {
		return "project"
	}
	return fmt.Sprintf("md %d", mdIndex)
}

// persist writes the named fields of the cached document back
func (p *Project) persist(ctx context.Context, fields ...string) error {
	set := bson.M{}
	for _, field := range fields {
		switch field {
		case "metadata":
			set[field] = p.data.Metadata
		case "mds":
			set[field] = p.data.MDs
		case "mdref":
			set[field] = p.data.MDRef
		case "files":
			set[field] = p.data.Files
		case "analyses":
			set[field] = p.data.Analyses
		case "published":
			set[field] = p.data.Published
		default:
			return Error.New("unknown project field %q", field)
		}
	}
	if len(set) == 0 {
		return nil
	}

	matched, err := p.db.collections.get(ProjectsKey).UpdateOne(ctx, bson.M{"_id": p.data.ID}, bson.M{"$set": set})
	if err != nil {
		return Error.Wrap(err)
	}
	if matched == 0 {
		return Fatal.New("project %s is gone from the database; %s", p.data.ID.Hex(), fatalCleanupHint)
	}
	return nil
}

// Reload replaces the cached document with the stored one
func (p *Project) Reload(ctx context.Context) error {
	data, err := p.db.findProjectDocument(ctx, p.data.ID.Hex())
	if err != nil {
		return err
	}
	if data == nil {
		return NotFound.New("project %s", p.data.ID.Hex())
	}
	if data.Metadata == nil {
		data.Metadata = bson.M{}
	}
	p.data = data
	return nil
}

// SetPublished flips the public visibility flag
func (p *Project) SetPublished(ctx context.Context, published bool) error {
	if p.data.Published == published {
		return nil
	}
	p.data.Published = published
	if err := p.persist(ctx, "published"); err != nil {
		return err
	}
	p.logger.Infof("Project %s published=%t", p.data.Accession, published)
	return nil
}

// UpdateMetadata merges incoming into the project metadata
func (p *Project) UpdateMetadata(ctx context.Context, incoming bson.M, policy Policy) (bool, error) {
	if err := p.db.checkAbort(); err != nil {
		return false, err
	}
	changed, err := MergeMetadata(ctx, p.data.Metadata, incoming, policy, p.db.prompter)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	return true, p.persist(ctx, "metadata")
}

// UpdateMDMetadata merges incoming into the metadata of one replica
func (p *Project) UpdateMDMetadata(ctx context.Context, mdIndex int, incoming bson.M, policy Policy) (bool, error) {
	if err := p.db.checkAbort(); err != nil {
		return false, err
	}
	md, err := p.md(mdIndex)
	if err != nil {
		return false, err
	}
	if md.Metadata == nil {
		md.Metadata = bson.M{}
	}
	changed, err := MergeMetadata(ctx, md.Metadata, incoming, policy, p.db.prompter)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	return true, p.persist(ctx, "mds")
}

// refreshMDCount stores the active replica count in the project metadata
func (p *Project) refreshMDCount() {
	p.data.Metadata[mdCountField] = p.MDCount()
}
