package directors

import (
	"context"
	"fmt"
	"path/filepath"

	"mddb/src/engine"
	"mddb/src/helpers"
	"mddb/src/settings"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ProjectService runs the project level commands
type ProjectService struct {
	db       *engine.Database
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

// NewProjectService creates a new ProjectService
func NewProjectService(db *engine.Database, settings *settings.Arguments, logger *zap.SugaredLogger) *ProjectService {
	return &ProjectService{
		db:       db,
		settings: settings,
		logger:   logger,
	}
}

// Load writes the manifest into a new or existing project. When anything
// fails the documents created so far are reverted.
func (s *ProjectService) Load(ctx context.Context, manifest *Manifest) (*engine.Project, error) {
	policy, err := engine.ParsePolicy(s.settings.Policy)
	if err != nil {
		return nil, err
	}

	project, err := s.load(ctx, manifest, policy)
	if err != nil {
		s.logger.Errorf("Load failed: %v", err)
		if revertErr := s.db.RevertLoad(ctx, s.settings.Force); revertErr != nil {
			return nil, errs.Combine(err, revertErr)
		}
		return nil, err
	}

	if err := s.db.Journal().Discard(); err != nil {
		s.logger.Warnf("Failed to discard the journal: %v", err)
	}
	s.logger.Infof("Loaded project %s", project.Accession())
	return project, nil
}

func (s *ProjectService) load(ctx context.Context, manifest *Manifest, policy engine.Policy) (*engine.Project, error) {
	var project *engine.Project
	var err error
	if manifest.Project != "" {
		project, err = s.db.SyncProject(ctx, manifest.Project)
	} else {
		project, err = s.db.CreateProject(ctx, manifest.Accession)
	}
	if err != nil {
		return nil, err
	}

	for _, ref := range manifest.References {
		kind, ok := engine.ReferenceKindFor(ref.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown reference kind %q", ref.Kind)
		}
		if _, err := s.db.AddReference(ctx, kind, bson.M(ref.Record), policy); err != nil {
			return nil, err
		}
	}

	if len(manifest.Metadata) > 0 {
		if _, err := project.UpdateMetadata(ctx, bson.M(manifest.Metadata), policy); err != nil {
			return nil, err
		}
	}
	if len(manifest.Topology) > 0 {
		if _, err := project.SetTopology(ctx, bson.M(manifest.Topology), policy); err != nil {
			return nil, err
		}
	}

	if err := s.loadData(ctx, project, manifest, engine.ProjectScope, manifest.Files, manifest.Analyses, policy); err != nil {
		return nil, err
	}
	for _, md := range manifest.MDs {
		index, err := s.openMD(ctx, project, md, policy)
		if err != nil {
			return nil, err
		}
		if err := s.loadData(ctx, project, manifest, index, md.Files, md.Analyses, policy); err != nil {
			return nil, err
		}
	}
	return project, nil
}

// openMD returns the active replica with the entry name, adding it when missing
func (s *ProjectService) openMD(ctx context.Context, project *engine.Project, entry MDEntry, policy engine.Policy) (int, error) {
	mds := project.MDs()
	for _, index := range project.ActiveMDs() {
		if mds[index].Name != entry.Name {
			continue
		}
		if len(entry.Metadata) > 0 {
			if _, err := project.UpdateMDMetadata(ctx, index, bson.M(entry.Metadata), policy); err != nil {
				return 0, err
			}
		}
		return index, nil
	}
	return project.AddMDirectory(ctx, entry.Name, bson.M(entry.Metadata))
}

func (s *ProjectService) loadData(ctx context.Context, project *engine.Project, manifest *Manifest, index int,
	files []FileEntry, analyses []AnalysisEntry, policy engine.Policy) error {

	for _, file := range files {
		path := manifest.resolve(file.Path)
		if !helpers.FileExists(path, s.logger) {
			return engine.NotFound.New("file %s", path)
		}
		digest, err := helpers.DigestFile(path)
		if err != nil {
			return err
		}
		name := file.FileName()
		proceed, err := project.ForestallFileLoad(ctx, name, index, policy, digest)
		if err != nil {
			return err
		}
		if !proceed {
			s.logger.Infof("Keeping stored file %s", name)
			continue
		}
		if err := s.addFile(ctx, project, name, path, index); err != nil {
			return err
		}
	}

	for _, analysis := range analyses {
		value, err := manifest.analysisValue(analysis)
		if err != nil {
			return err
		}
		proceed, err := project.ForestallAnalysisLoad(ctx, analysis.Name, index, policy)
		if err != nil {
			return err
		}
		if !proceed {
			s.logger.Infof("Keeping stored analysis %s", analysis.Name)
			continue
		}
		if _, err := project.AddAnalysis(ctx, analysis.Name, value, index); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProjectService) addFile(ctx context.Context, project *engine.Project, name, path string, index int) error {
	file, err := helpers.OpenDataFile(filepath.Dir(path), filepath.Base(path))
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = project.AddFile(ctx, name, file, index)
	return err
}

// Publish flags the project as published or not
func (s *ProjectService) Publish(ctx context.Context, identifier string, published bool) error {
	project, err := s.db.SyncProject(ctx, identifier)
	if err != nil {
		return err
	}
	return project.SetPublished(ctx, published)
}

// Delete removes the project and everything it owns after confirmation
func (s *ProjectService) Delete(ctx context.Context, identifier string) (bool, error) {
	project, err := s.db.SyncProject(ctx, identifier)
	if err != nil {
		return false, err
	}

	if !s.settings.Force {
		question := fmt.Sprintf("Delete project %s with its %d active MDs? This cannot be undone.",
			project.Accession(), len(project.ActiveMDs()))
		yes, err := engine.Confirm(ctx, s.db.Prompter(), question)
		if err != nil || !yes {
			return false, err
		}
	}
	if err := project.DeleteProject(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RenameFile renames a file of the project or of one of its replicas
func (s *ProjectService) RenameFile(ctx context.Context, identifier, name, newName string, mdIndex int) error {
	project, err := s.db.SyncProject(ctx, identifier)
	if err != nil {
		return err
	}
	return project.RenameFile(ctx, name, newName, mdIndex)
}

// Find resolves an object id in any collection, or a project accession.
// It returns nil when nothing matches.
func (s *ProjectService) Find(ctx context.Context, identifier string) (bson.M, string, error) {
	if id, err := primitive.ObjectIDFromHex(identifier); err == nil {
		document, key, err := s.db.FindID(ctx, id)
		if err != nil || document != nil {
			return document, key, err
		}
	}

	project, err := s.db.FindProject(ctx, identifier)
	if err != nil || project == nil {
		return nil, "", err
	}
	document, err := helpers.CloneDocument(project.Data())
	if err != nil {
		return nil, "", err
	}
	return document, engine.ProjectsKey, nil
}

// Inconsistencies lists the broken references of a project
func (s *ProjectService) Inconsistencies(ctx context.Context, identifier string) ([]engine.InconsistencyReport, error) {
	project, err := s.db.SyncProject(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return project.FindInconsistencies(ctx)
}

// Revert replays a journal file left behind by an interrupted run
func (s *ProjectService) Revert(ctx context.Context, journalPath string) error {
	journal, err := engine.LoadJournal(journalPath)
	if err != nil {
		return err
	}
	if journal.Empty() {
		s.logger.Infof("Journal %s has nothing to revert", journalPath)
		return journal.Discard()
	}

	db := engine.NewDatabase(s.db.Store(), journal, s.db.Prompter(), s.logger)
	return db.RevertLoad(ctx, s.settings.Force)
}
