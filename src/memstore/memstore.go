// Package memstore is an in-memory engine.Store used by tests and dry runs.
// It understands equality filters on dotted paths, $set, $unset and $inc.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"mddb/src/engine"
	"mddb/src/helpers"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store keeps every collection in memory
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
	blobs       *BlobStore
}

// New returns an empty store whose blob bucket splits files into chunkSize pieces
func New(chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = engine.DefaultChunkSize
	}
	s := &Store{collections: make(map[string]*Collection)}
	s.blobs = &BlobStore{
		files:     s.collection("fs.files"),
		chunks:    s.collection("fs.chunks"),
		chunkSize: chunkSize,
	}
	return s
}

func (s *Store) collection(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &Collection{name: name}
		s.collections[name] = c
	}
	return c
}

// Collection returns the named collection, creating it on first use
func (s *Store) Collection(name string) engine.Collection {
	return s.collection(name)
}

// Raw returns the concrete collection, for tests that tamper with documents
func (s *Store) Raw(name string) *Collection {
	return s.collection(name)
}

func (s *Store) CollectionNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.collections))
	for name, c := range s.collections {
		if c.created {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	c := s.collection(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.created {
		return fmt.Errorf("collection %s already exists", name)
	}
	c.created = true
	return nil
}

func (s *Store) Blobs() engine.BlobStore {
	return s.blobs
}

// Bucket returns the concrete blob store
func (s *Store) Bucket() *BlobStore {
	return s.blobs
}

// Collection is one in-memory collection
type Collection struct {
	mu      sync.Mutex
	name    string
	created bool
	docs    []bson.M
	indexes []engine.IndexSpec
}

func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of stored documents
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *Collection) InsertOne(ctx context.Context, document interface{}) error {
	doc, err := helpers.CloneDocument(document)
	if err != nil {
		return err
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = true

	if err := c.checkUnique(doc); err != nil {
		return err
	}
	c.docs = append(c.docs, doc)
	return nil
}

func (c *Collection) checkUnique(doc bson.M) error {
	indexes := append([]engine.IndexSpec{{Name: "_id_", Keys: bson.D{{Key: "_id", Value: 1}}, Unique: true}}, c.indexes...)
	for _, index := range indexes {
		if !index.Unique || len(index.Keys) != 1 {
			continue
		}
		key := index.Keys[0].Key
		value, present := lookup(doc, key)
		if !present && index.Sparse {
			continue
		}
		for _, existing := range c.docs {
			other, otherPresent := lookup(existing, key)
			if !otherPresent && index.Sparse {
				continue
			}
			if equal(value, other) {
				return fmt.Errorf("E11000 duplicate key error collection: %s index: %s dup key: %v", c.name, index.Name, value)
			}
		}
	}
	return nil
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M, result interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return true, helpers.DecodeDocument(doc, result)
		}
	}
	return false, nil
}

func (c *Collection) Find(ctx context.Context, filter bson.M) ([]bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found []bson.M
	for _, doc := range c.docs {
		if matches(doc, filter) {
			clone, err := helpers.CloneDocument(doc)
			if err != nil {
				return nil, err
			}
			found = append(found, clone)
		}
	}
	return found, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return 1, applyUpdate(doc, update)
		}
	}
	return 0, nil
}

func (c *Collection) IncrementOne(ctx context.Context, filter bson.M, field string, delta int64, result interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			if err := applyUpdate(doc, bson.M{"$inc": bson.M{field: delta}}); err != nil {
				return false, err
			}
			return true, helpers.DecodeDocument(doc, result)
		}
	}
	return false, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if matches(doc, filter) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// deleteMany removes every match and returns how many went
func (c *Collection) deleteMany(filter bson.M) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.docs[:0]
	var deleted int64
	for _, doc := range c.docs {
		if matches(doc, filter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return deleted
}

func (c *Collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int64
	for _, doc := range c.docs {
		if matches(doc, filter) {
			count++
		}
	}
	return count, nil
}

func (c *Collection) IndexNames(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := []string{"_id_"}
	for _, index := range c.indexes {
		names = append(names, index.Name)
	}
	return names, nil
}

func (c *Collection) CreateIndex(ctx context.Context, index engine.IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.indexes {
		if existing.Name == index.Name {
			return nil
		}
	}
	c.indexes = append(c.indexes, index)
	return nil
}

// lookup resolves a dotted path without array expansion
func lookup(doc bson.M, path string) (interface{}, bool) {
	var current interface{} = doc
	for _, step := range strings.Split(path, ".") {
		m, ok := current.(bson.M)
		if !ok {
			return nil, false
		}
		if current, ok = m[step]; !ok {
			return nil, false
		}
	}
	return current, true
}

// matches applies an equality filter with array membership on every path
func matches(doc bson.M, filter bson.M) bool {
	for path, want := range filter {
		want = normalize(want)
		values := engine.LookupPath(doc, path)
		if raw, ok := lookup(doc, path); ok {
			values = append(values, raw)
		}
		if want == nil && len(values) == 0 {
			continue
		}
		found := false
		for _, value := range values {
			if equal(value, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalize(value interface{}) interface{} {
	wrapped, err := helpers.CloneDocument(bson.M{"v": value})
	if err != nil {
		return value
	}
	return wrapped["v"]
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func applyUpdate(doc bson.M, update bson.M) error {
	for operator, fields := range update {
		values, ok := normalize(fields).(bson.M)
		if !ok {
			return fmt.Errorf("update operator %s needs a document", operator)
		}
		for path, value := range values {
			switch operator {
			case "$set":
				setPath(doc, path, value)
			case "$unset":
				unsetPath(doc, path)
			case "$inc":
				current, _ := lookup(doc, path)
				base, _ := toFloat(current)
				delta, ok := toFloat(value)
				if !ok {
					return fmt.Errorf("cannot increment %s by %v", path, value)
				}
				if _, isFloat := current.(float64); isFloat {
					setPath(doc, path, base+delta)
				} else {
					setPath(doc, path, int64(base)+int64(delta))
				}
			default:
				return fmt.Errorf("unsupported update operator %s", operator)
			}
		}
	}
	return nil
}

func setPath(doc bson.M, path string, value interface{}) {
	steps := strings.Split(path, ".")
	current := doc
	for _, step := range steps[:len(steps)-1] {
		next, ok := current[step].(bson.M)
		if !ok {
			next = bson.M{}
			current[step] = next
		}
		current = next
	}
	current[steps[len(steps)-1]] = value
}

func unsetPath(doc bson.M, path string) {
	steps := strings.Split(path, ".")
	current := doc
	for _, step := range steps[:len(steps)-1] {
		next, ok := current[step].(bson.M)
		if !ok {
			return
		}
		current = next
	}
	delete(current, steps[len(steps)-1])
}
