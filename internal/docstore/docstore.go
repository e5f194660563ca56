// Package docstore is the conduit to a schemaless document database. Records
// are untyped field maps grouped in named collections; the store assigns
// identifiers and resolves ServerTimestamp placeholders on write.
//
// Backends: an in-process store (NewMemoryStore), PostgreSQL JSONB
// documents (NewPostgresStore) and MongoDB (NewMongoStore). Timestamps come
// back in the backend's native form: Timestamp for the memory store, ISO-8601
// strings for PostgreSQL and primitive.DateTime for MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blogCPT/internal/models"
)

var ErrNotFound = errors.New("document not found")

type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Document is a stored record. Fields never contains the identifier.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Cursor points at the last document of the previous page: Value is that
// document's OrderBy field, ID breaks ties.
type Cursor struct {
	Value any
	ID    string
}

type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
	StartAfter *Cursor
}

type Store interface {
	Query(ctx context.Context, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Add inserts fields under a new identifier and returns the stored document
	// with every ServerTimestamp placeholder resolved.
	Add(ctx context.Context, collection string, fields map[string]any) (Document, error)
	// Update merges fields into an existing document. Missing documents yield ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

type serverTimestamp struct{}

// ServerTimestamp is a field placeholder replaced by the store's write time.
var ServerTimestamp any = serverTimestamp{}

func isServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Timestamp is the boxed timestamp the memory store hands back.
type Timestamp struct {
	t time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(time.Millisecond)}
}

func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) String() string { return ts.t.Format(models.TimeLayout) }

// storeTime is the write time every backend stamps, truncated to the
// millisecond precision of the canonical layout.
func storeTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}

// asTime unwraps the timestamp representations a cursor value may carry.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case interface{ Time() time.Time }:
		return t.Time(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func validateQuery(q Query) error {
	if q.Collection == "" {
		return errors.New("query: collection is required")
	}
	if q.StartAfter != nil && q.OrderBy == "" {
		return errors.New("query: cursor requires an order field")
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
