// Package smoketest provides an in-memory smoke.Store for tests that drive
// the smoke sequence without a Milvus server.
package smoketest

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
)

type entity struct {
	id     int64
	textID string
	vector []float32
}

type collection struct {
	schema   milvus.Schema
	entities []entity
	loaded   bool
}

// MemoryStore keeps collections in memory and answers searches by brute-force
// L2 distance. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*collection
	nextID      int64
	closed      bool
}

var _ smoke.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*collection), nextID: 1}
}

// Dialer returns a smoke.Dialer that always hands out s.
func (s *MemoryStore) Dialer() smoke.Dialer {
	return func(ctx context.Context, cfg smoke.Config) (smoke.Store, error) {
		return s, nil
	}
}

// Closed reports whether Close was called.
func (s *MemoryStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemoryStore) HasCollection(ctx context.Context, collectionName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[collectionName]
	return ok, nil
}

func (s *MemoryStore) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.Newf("collection not found[collection=%s]", name)
	}
	return c, nil
}

func (s *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, schema milvus.Schema) error {
	if _, err := milvus.BuildSchema(schema); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[schema.Name]; ok {
		return errors.Newf("collection %s already exists", schema.Name)
	}
	s.collections[schema.Name] = &collection{schema: schema}
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, collectionName string, data map[string]any) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collectionName)
	if err != nil {
		return nil, err
	}

	textIDs, _ := data[smoke.FieldTextID].([]string)
	vectors, _ := data[smoke.FieldEmbedding].([][]float32)
	if len(textIDs) != len(vectors) {
		return nil, errors.Newf("column length mismatch: %d text ids, %d vectors", len(textIDs), len(vectors))
	}
	dim := dimension(c.schema)
	ids := make([]int64, len(vectors))
	for i, v := range vectors {
		if int64(len(v)) != dim {
			return nil, errors.Newf("vector dimension %d does not match %d", len(v), dim)
		}
		ids[i] = s.nextID
		c.entities = append(c.entities, entity{id: s.nextID, textID: textIDs[i], vector: v})
		s.nextID++
	}
	return ids, nil
}

func dimension(schema milvus.Schema) int64 {
	for _, f := range schema.Fields {
		if f.Dimension > 0 {
			return f.Dimension
		}
	}
	return 0
}

func (s *MemoryStore) Flush(ctx context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.get(collectionName)
	return err
}

func (s *MemoryStore) CreateIndex(ctx context.Context, collectionName, fieldName string, params milvus.IndexParams) error {
	if _, err := milvus.BuildIndex(params); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.get(collectionName)
	return err
}

func (s *MemoryStore) LoadCollection(ctx context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collectionName)
	if err != nil {
		return err
	}
	c.loaded = true
	return nil
}

func (s *MemoryStore) CountEntities(ctx context.Context, collectionName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collectionName)
	if err != nil {
		return 0, err
	}
	return int64(len(c.entities)), nil
}

func (s *MemoryStore) Search(ctx context.Context, req milvus.SearchRequest) ([]milvus.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(req.Collection)
	if err != nil {
		return nil, err
	}
	if !c.loaded {
		return nil, errors.Newf("collection %s not loaded", req.Collection)
	}

	var results []milvus.SearchResult
	for _, q := range req.Vectors {
		hits := make([]milvus.SearchResult, 0, len(c.entities))
		for _, e := range c.entities {
			hits = append(hits, milvus.SearchResult{
				ID:     e.id,
				Score:  l2(q, e.vector),
				Fields: map[string]any{smoke.FieldTextID: e.textID},
			})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
		results = append(results, hits[:min(req.Limit, len(hits))]...)
	}
	return results, nil
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Query understands only the "text_id in [...]" filter the smoke run issues.
func (s *MemoryStore) Query(ctx context.Context, req milvus.QueryRequest) ([]milvus.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(req.Collection)
	if err != nil {
		return nil, err
	}
	if !c.loaded {
		return nil, errors.Newf("collection %s not loaded", req.Collection)
	}

	var rows []milvus.Row
	for _, e := range c.entities {
		if !strings.Contains(req.Filter, "'"+e.textID+"'") {
			continue
		}
		row := milvus.Row{}
		if slices.Contains(req.OutputFields, smoke.FieldTextID) {
			row[smoke.FieldTextID] = e.textID
		}
		if slices.Contains(req.OutputFields, smoke.FieldID) {
			row[smoke.FieldID] = e.id
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *MemoryStore) ReleaseCollection(ctx context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collectionName)
	if err != nil {
		return err
	}
	c.loaded = false
	return nil
}

func (s *MemoryStore) DropCollection(ctx context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(collectionName); err != nil {
		return err
	}
	delete(s.collections, collectionName)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
