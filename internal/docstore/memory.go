package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"blogCPT/internal/clock"
)

// MemoryStore keeps collections in process memory. Useful for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	clock       clock.Clock
	collections map[string]map[string]map[string]any
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System()
	}
	return &MemoryStore{
		clock:       c,
		collections: make(map[string]map[string]map[string]any),
	}
}

func (s *MemoryStore) resolve(fields map[string]any) map[string]any {
	now := NewTimestamp(storeTime(s.clock.Now()))
	out := copyFields(fields)
	for k, v := range out {
		if isServerTimestamp(v) {
			out[k] = now
		}
	}
	return out
}

func (s *MemoryStore) Add(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	resolved := s.resolve(fields)
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	docs[id] = resolved

	return Document{ID: id, Fields: copyFields(resolved)}, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved := s.resolve(fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range resolved {
		existing[k] = v
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var docs []Document
	for id, fields := range s.collections[q.Collection] {
		if matches(fields, q.Where) {
			docs = append(docs, Document{ID: id, Fields: copyFields(fields)})
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			return less(q, docs[i].Fields[q.OrderBy], docs[i].ID, docs[j].Fields[q.OrderBy], docs[j].ID)
		})
	}

	if q.StartAfter != nil {
		start := len(docs)
		for i, doc := range docs {
			if less(q, q.StartAfter.Value, q.StartAfter.ID, doc.Fields[q.OrderBy], doc.ID) {
				start = i
				break
			}
		}
		docs = docs[start:]
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func matches(fields map[string]any, where []Filter) bool {
	for _, f := range where {
		if compareValues(fields[f.Field], f.Value) != 0 {
			return false
		}
	}
	return true
}

// less orders (a, aID) before (b, bID) in the query's direction.
func less(q Query, a any, aID string, b any, bID string) bool {
	c := compareValues(a, b)
	if c == 0 {
		c = strings.Compare(aID, bID)
	}
	if q.Direction == Descending {
		return c > 0
	}
	return c < 0
}

// compareValues orders missing values first, then times, numbers and strings.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Compare(bt)
		}
	}

	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var _ Store = (*MemoryStore)(nil)
