package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mddb/src/models"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// Keys of the bastard scans, reported next to the relationship keys
const (
	BastardFilesKey    = "bastard-files"
	BastardAnalysesKey = "bastard-analyses"
)

// OrphanKeys lists every key accepted by FindOrphans and DeleteOrphanData
func OrphanKeys() []string {
	keys := make([]string, 0, len(Relationships)+2)
	for _, rel := range Relationships {
		keys = append(keys, rel.Key)
	}
	return append(keys, BastardFilesKey, BastardAnalysesKey)
}

// LookupPath resolves a dotted path in a document. Arrays met on the way are
// flattened one level per step, so every reachable value is returned.
func LookupPath(document interface{}, path string) []interface{} {
	current := []interface{}{document}
	for _, step := range strings.Split(path, ".") {
		var next []interface{}
		for _, value := range current {
			for _, item := range flatten(value) {
				if v, ok := field(item, step); ok {
					next = append(next, v)
				}
			}
		}
		current = next
	}

	var values []interface{}
	for _, value := range current {
		values = append(values, flatten(value)...)
	}
	return values
}

func flatten(value interface{}) []interface{} {
	switch list := value.(type) {
	case bson.A:
		return []interface{}(list)
	case []interface{}:
		return list
	}
	return []interface{}{value}
}

func field(value interface{}, name string) (interface{}, bool) {
	switch document := value.(type) {
	case bson.M:
		v, ok := document[name]
		return v, ok
	case map[string]interface{}:
		v, ok := document[name]
		return v, ok
	case bson.D:
		for _, element := range document {
			if element.Key == name {
				return element.Value, true
			}
		}
	}
	return nil, false
}

// valueKey renders a value so that equal ids of different numeric widths meet
func valueKey(value interface{}) string {
	switch v := value.(type) {
	case primitive.ObjectID:
		return "oid:" + v.Hex()
	case int:
		return fmt.Sprintf("num:%v", float64(v))
	case int32:
		return fmt.Sprintf("num:%v", float64(v))
	case int64:
		return fmt.Sprintf("num:%v", float64(v))
	case float64:
		return fmt.Sprintf("num:%v", v)
	case string:
		return "str:" + v
	}
	return fmt.Sprintf("%T:%v", value, value)
}

// ScanOrphans returns the child documents whose childField value is not among
// the parentField values of any parent document
func ScanOrphans(ctx context.Context, parent Collection, parentField string, child Collection, childField string) ([]bson.M, error) {
	var parents, children []bson.M
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		parents, err = parent.Find(groupCtx, bson.M{})
		return err
	})
	group.Go(func() error {
		var err error
		children, err = child.Find(groupCtx, bson.M{})
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, Error.Wrap(err)
	}

	live := make(map[string]bool)
	for _, document := range parents {
		for _, value := range LookupPath(document, parentField) {
			live[valueKey(value)] = true
		}
	}

	var orphans []bson.M
	for _, document := range children {
		referenced := false
		for _, value := range LookupPath(document, childField) {
			if live[valueKey(value)] {
				referenced = true
				break
			}
		}
		if !referenced {
			orphans = append(orphans, document)
		}
	}
	return orphans, nil
}

// FindOrphans returns the orphan documents of one relationship or bastard key
func (d *Database) FindOrphans(ctx context.Context, key string) ([]bson.M, error) {
	switch key {
	case BastardFilesKey:
		return d.findBastards(ctx, fileData)
	case BastardAnalysesKey:
		return d.findBastards(ctx, analysisData)
	}
	rel, ok := RelationshipFor(key)
	if !ok {
		return nil, Error.New("unknown orphan key %q, expected one of %s", key, strings.Join(OrphanKeys(), ", "))
	}
	return ScanOrphans(ctx, d.collections.get(rel.Parent), rel.ParentField, d.collections.get(rel.Child), rel.ChildField)
}

// FindAllOrphans runs every orphan scan concurrently
func (d *Database) FindAllOrphans(ctx context.Context) (map[string][]bson.M, error) {
	var mu sync.Mutex
	results := make(map[string][]bson.M)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, key := range OrphanKeys() {
		key := key
		group.Go(func() error {
			orphans, err := d.FindOrphans(groupCtx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = orphans
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// findBastards returns the file or analysis documents whose claimed project
// exists but does not list them at the claimed scope
func (d *Database) findBastards(ctx context.Context, kind dataKind) ([]bson.M, error) {
	projects, err := d.ListProjects(ctx, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]*models.Project, len(projects))
	for i := range projects {
		byID[projects[i].ID] = &projects[i]
	}

	documents, err := d.collections.get(kind.collection()).Find(ctx, bson.M{})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var bastards []bson.M
	for _, document := range documents {
		id, ok := document["_id"].(primitive.ObjectID)
		if !ok {
			continue
		}
		owner, md, err := claimedOwner(kind, document)
		if err != nil {
			return nil, err
		}
		project, exists := byID[owner]
		if !exists {
			// That is an orphan, not a bastard
			continue
		}
		listed := false
		for _, ref := range scopeRefs(project, kind, md) {
			if ref.ID == id {
				listed = true
				break
			}
		}
		if !listed {
			bastards = append(bastards, document)
		}
	}
	return bastards, nil
}

func claimedOwner(kind dataKind, document bson.M) (primitive.ObjectID, *int, error) {
	if kind == fileData {
		var file models.BinaryFile
		if err := decodeDocument(document, &file); err != nil {
			return primitive.NilObjectID, nil, err
		}
		return file.Metadata.Project, file.Metadata.MD, nil
	}
	var analysis models.Analysis
	if err := decodeDocument(document, &analysis); err != nil {
		return primitive.NilObjectID, nil, err
	}
	return analysis.Project, analysis.MD, nil
}

// DeleteOrphanData deletes the orphans of one key, or of every key when key is
// "all". Unless forced the operator must confirm twice.
func (d *Database) DeleteOrphanData(ctx context.Context, key string, force bool) (int, error) {
	keys := []string{key}
	if key == "all" {
		keys = OrphanKeys()
	}

	deleted := 0
	for _, key := range keys {
		n, err := d.deleteOrphansOf(ctx, key, force)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (d *Database) deleteOrphansOf(ctx context.Context, key string, force bool) (int, error) {
	orphans, err := d.FindOrphans(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		d.logger.Infof("No orphan %s found", key)
		return 0, nil
	}

	collection := orphanCollection(key)
	spec, _ := CollectionSpecFor(collection)
	if !force {
		question := fmt.Sprintf("Found %s. Delete them?", pluralize(len(orphans), "orphan "+spec.Label))
		yes, err := Confirm(ctx, d.prompter, question)
		if err != nil || !yes {
			return 0, err
		}
		yes, err = Confirm(ctx, d.prompter, "This cannot be undone. Are you sure?")
		if err != nil || !yes {
			return 0, err
		}
	}

	ids := make([]string, 0, len(orphans))
	deleted := 0
	var group errs.Group
	for _, orphan := range orphans {
		id := orphan["_id"]
		err := d.deleteDocument(ctx, collection, id)
		if NotFound.Has(err) {
			continue
		}
		if err != nil {
			group.Add(err)
			continue
		}
		deleted++
		ids = append(ids, valueKey(id))
	}
	sort.Strings(ids)
	d.logger.Infow("Deleted orphan data", "key", key, "count", deleted, "ids", ids)
	return deleted, group.Err()
}

func orphanCollection(key string) string {
	switch key {
	case BastardFilesKey:
		return FilesKey
	case BastardAnalysesKey:
		return AnalysesKey
	}
	rel, _ := RelationshipFor(key)
	return rel.Child
}

// InconsistencyReport describes one reference whose backing document is missing
// or claims another owner
type InconsistencyReport struct {
	Kind   string
	Name   string
	ID     primitive.ObjectID
	MD     *int
	Reason string
}

// FindInconsistencies checks every file and analysis reference of the project
func (p *Project) FindInconsistencies(ctx context.Context) ([]InconsistencyReport, error) {
	var reports []InconsistencyReport
	check := func(kind dataKind, refs []models.DataRef, mdIndex int) error {
		for _, ref := range refs {
			owner, ownerMD, found, err := p.db.backingOwner(ctx, kind, ref.ID)
			if err != nil {
				return err
			}
			report := InconsistencyReport{Kind: kind.String(), Name: ref.Name, ID: ref.ID, MD: models.MDIndex(mdIndex)}
			switch {
			case !found:
				report.Reason = "missing backing document"
			case owner != p.data.ID:
				report.Reason = fmt.Sprintf("claimed by project %s", owner.Hex())
			case !sameMD(ownerMD, models.MDIndex(mdIndex)):
				report.Reason = fmt.Sprintf("claimed by %s", scopeLabel(mdOrScope(ownerMD)))
			default:
				continue
			}
			reports = append(reports, report)
		}
		return nil
	}

	if err := check(fileData, p.data.Files, ProjectScope); err != nil {
		return nil, err
	}
	if err := check(analysisData, p.data.Analyses, ProjectScope); err != nil {
		return nil, err
	}
	for _, index := range p.ActiveMDs() {
		md := p.data.MDs[index]
		if err := check(fileData, md.Files, index); err != nil {
			return nil, err
		}
		if err := check(analysisData, md.Analyses, index); err != nil {
			return nil, err
		}
	}
	return reports, nil
}
