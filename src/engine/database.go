package engine

import (
	"context"
	"fmt"
	"strings"

	"mddb/src/helpers"
	"mddb/src/models"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Database is the handle every project operation goes through
type Database struct {
	store       Store
	collections collectionSet
	journal     *Journal
	prompter    Prompter
	shouldAbort func() bool
	logger      *zap.SugaredLogger
}

// NewDatabase wraps a store. A nil journal keeps an in-memory one and a nil
// prompter makes every unresolved conflict an error.
func NewDatabase(store Store, journal *Journal, prompter Prompter, logger *zap.SugaredLogger) *Database {
	if journal == nil {
		journal = NewJournal("", "")
	}
	return &Database{
		store:       store,
		collections: collectionSet{store: store},
		journal:     journal,
		prompter:    prompter,
		logger:      logger,
	}
}

// SetAbortPredicate installs the function polled at safe points of long running loads
func (d *Database) SetAbortPredicate(shouldAbort func() bool) {
	d.shouldAbort = shouldAbort
}

// Journal returns the undo journal of the current run
func (d *Database) Journal() *Journal {
	return d.journal
}

func (d *Database) Prompter() Prompter {
	return d.prompter
}

// Store returns the backing store
func (d *Database) Store() Store {
	return d.store
}

// Collection returns the store collection registered under key
func (d *Database) Collection(key string) Collection {
	return d.collections.get(key)
}

func (d *Database) checkAbort() error {
	if d.shouldAbort != nil && d.shouldAbort() {
		return Aborted.New("operation interrupted")
	}
	return nil
}

// Bootstrap creates missing collections, indexes and the accession counter
func (d *Database) Bootstrap(ctx context.Context) error {
	if err := d.collections.bootstrap(ctx, d.logger); err != nil {
		return Error.Wrap(err)
	}
	return d.ensureCounter(ctx)
}

// projectFilter matches an internal id in hex form or a public accession
func projectFilter(identifier string) bson.M {
	if id, err := primitive.ObjectIDFromHex(identifier); err == nil {
		return bson.M{"_id": id}
	}
	return bson.M{"accession": strings.ToUpper(identifier)}
}

func (d *Database) findProjectDocument(ctx context.Context, identifier string) (*models.Project, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, Fatal.New("no project identifier given")
	}
	var data models.Project
	found, err := d.collections.get(ProjectsKey).FindOne(ctx, projectFilter(identifier), &data)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !found {
		return nil, nil
	}
	return &data, nil
}

// FindProject returns the project with the given id or accession, or nil when none exists
func (d *Database) FindProject(ctx context.Context, identifier string) (*Project, error) {
	data, err := d.findProjectDocument(ctx, identifier)
	if err != nil || data == nil {
		return nil, err
	}
	return newProject(d, data), nil
}

// SyncProject is FindProject for callers that require the project to exist
func (d *Database) SyncProject(ctx context.Context, identifier string) (*Project, error) {
	project, err := d.FindProject(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, NotFound.New("project %s", identifier)
	}
	return project, nil
}

// ListProjects returns every project matching filter
func (d *Database) ListProjects(ctx context.Context, filter bson.M) ([]models.Project, error) {
	if filter == nil {
		filter = bson.M{}
	}
	documents, err := d.collections.get(ProjectsKey).Find(ctx, filter)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	projects := make([]models.Project, 0, len(documents))
	for _, document := range documents {
		var project models.Project
		if err := decodeDocument(document, &project); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// CreateProject inserts an empty project. A forced accession is used as is,
// otherwise a new one is issued.
func (d *Database) CreateProject(ctx context.Context, forcedAccession string) (*Project, error) {
	projects := d.collections.get(ProjectsKey)

	accession := strings.ToUpper(strings.TrimSpace(forcedAccession))
	if accession != "" {
		if _, err := ParseAccession(accession); err != nil {
			return nil, err
		}
		holders, err := projects.CountDocuments(ctx, bson.M{"accession": accession})
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if holders > 0 {
			return nil, Conflict.New("accession %s is already in use", accession)
		}
	} else {
		var err error
		if accession, err = d.IssueNewAccession(ctx); err != nil {
			return nil, err
		}
	}

	data := &models.Project{
		ID:        primitive.NewObjectID(),
		Accession: accession,
		Metadata:  bson.M{},
		MDs:       []models.MD{},
		Files:     []models.DataRef{},
		Analyses:  []models.DataRef{},
	}
	if err := projects.InsertOne(ctx, data); err != nil {
		if holders, countErr := projects.CountDocuments(ctx, bson.M{"accession": accession}); countErr == nil && holders > 0 {
			return nil, Conflict.New("accession %s is already in use", accession)
		}
		return nil, Error.Wrap(err)
	}
	if err := d.journal.AddEntry("project", ProjectsKey, data.ID); err != nil {
		d.logger.Warnf("Failed to journal project %s: %v", data.ID.Hex(), err)
	}

	holders, err := projects.CountDocuments(ctx, bson.M{"accession": accession})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if holders > 1 {
		if _, err := projects.DeleteOne(ctx, bson.M{"_id": data.ID}); err != nil {
			d.logger.Errorf("Failed to remove duplicated project %s: %v", data.ID.Hex(), err)
		}
		return nil, Fatal.New("accession %s is held by %d projects, the new one was removed; %s", accession, holders, fatalCleanupHint)
	}

	d.logger.Infof("Created project %s with accession %s", data.ID.Hex(), accession)
	return newProject(d, data), nil
}

// FindID looks for a document with the given id in every collection and
// returns it together with the key of the collection it was found in
func (d *Database) FindID(ctx context.Context, id primitive.ObjectID) (bson.M, string, error) {
	for _, spec := range Collections {
		var document bson.M
		found, err := d.collections.get(spec.Key).FindOne(ctx, bson.M{"_id": id}, &document)
		if err != nil {
			return nil, "", Error.Wrap(err)
		}
		if found {
			return document, spec.Key, nil
		}
	}
	return nil, "", nil
}

// deleteDocument removes one document by id, going through the bucket for files
func (d *Database) deleteDocument(ctx context.Context, key string, id interface{}) error {
	if key == FilesKey {
		oid, ok := id.(primitive.ObjectID)
		if !ok {
			return Error.New("file id %v is not an object id", id)
		}
		return d.store.Blobs().Delete(ctx, oid)
	}
	deleted, err := d.collections.get(key).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return Error.Wrap(err)
	}
	if deleted == 0 {
		return NotFound.New("%s %v", key, id)
	}
	return nil
}

// RevertLoad undoes everything the current run created. Unless forced the
// operator may choose to keep the new documents instead.
func (d *Database) RevertLoad(ctx context.Context, force bool) error {
	if d.journal.Empty() {
		return nil
	}

	entries := d.journal.Entries()
	if !force {
		purge, err := Confirm(ctx, d.prompter,
			fmt.Sprintf("The load did not finish and created %s. Delete them?", pluralize(len(entries), "new document")))
		if err != nil {
			return err
		}
		if !purge {
			d.logger.Infof("Keeping %d documents created by run %s", len(entries), d.journal.RunID())
			return d.journal.Discard()
		}
	}

	var group errs.Group
	if code := d.journal.IssuedAccession(); code != "" {
		released, err := d.releaseAccession(ctx, code)
		if err != nil {
			group.Add(err)
		} else if !released {
			d.logger.Warnf("Accession %s is no longer the last one issued, the counter was left alone", code)
		}
	}

	removed := 0
	for _, entry := range entries {
		err := d.deleteDocument(ctx, entry.Collection, entry.ID)
		if NotFound.Has(err) {
			d.logger.Debugf("Journaled %s %s is already gone", entry.Label, entry.ID.Hex())
			continue
		}
		if err != nil {
			d.logger.Errorf("Failed to revert %s %s: %v", entry.Label, entry.ID.Hex(), err)
			group.Add(err)
			continue
		}
		removed++
	}
	d.logger.Infof("Reverted run %s, removed %d of %d documents", d.journal.RunID(), removed, len(entries))
	if removed > 0 && !createdProject(entries) {
		d.logger.Warnf("The run added to a project that already existed and may have left references to removed documents, check it with 'mddb find --check <project>'")
	}

	if err := group.Err(); err != nil {
		return Fatal.New("revert was incomplete: %v; %s", err, fatalCleanupHint)
	}
	return d.journal.Discard()
}

// createdProject reports whether the run journaled a new project
func createdProject(entries []JournalEntry) bool {
	for _, entry := range entries {
		if entry.Collection == ProjectsKey {
			return true
		}
	}
	return false
}

// decodeDocument converts a generic document into a typed model
func decodeDocument(document bson.M, out interface{}) error {
	return Error.Wrap(helpers.DecodeDocument(document, out))
}

func pluralize(count int, noun string) string {
	if count == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
