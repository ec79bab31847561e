// Package docstore is the persistence boundary for marketplace entities. Every
// entity is a JSON document addressed by (collection, id); callers read single
// documents, load whole collections, write field maps with merge semantics and
// subscribe to full-collection change pushes.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names a document collection.
type Collection string

const (
	CollectionUsers    Collection = "users"
	CollectionRequests Collection = "requests"
	CollectionOffers   Collection = "offers"
	CollectionOrders   Collection = "orders"
	CollectionUpdates  Collection = "updates"
)

var validCollections = []Collection{
	CollectionUsers,
	CollectionRequests,
	CollectionOffers,
	CollectionOrders,
	CollectionUpdates,
}

// IsValid reports whether the collection is one the marketplace persists.
func (c Collection) IsValid() bool {
	for _, candidate := range validCollections {
		if candidate == c {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrPreconditionFailed is returned when a conditional write did not apply.
	ErrPreconditionFailed = errors.New("docstore: precondition failed")
)

// Document is a stored entity. Data holds JSON-normalized values: maps,
// slices, strings, bools and json.Number.
type Document struct {
	ID        string
	Data      map[string]any
	Revision  int64
	UpdatedAt time.Time
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Unsubscribe detaches a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// SnapshotFunc receives the full current contents of a collection.
type SnapshotFunc func(docs []Document)

// Store is the document store contract consumed by the marketplace core.
type Store interface {
	Get(ctx context.Context, collection Collection, id string) (*Document, error)
	LoadAll(ctx context.Context, collection Collection, filters ...Filter) ([]Document, error)
	Write(ctx context.Context, collection Collection, id string, fields map[string]any, opts ...WriteOption) (*Document, error)
	Subscribe(ctx context.Context, collection Collection, fn SnapshotFunc) (Unsubscribe, error)
}

// Filter restricts LoadAll to documents whose top-level field equals Value.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

func matchesAll(data map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false, err
		}
		if !valuesEqual(data[f.Field], want) {
			return false, nil
		}
	}
	return true, nil
}

func validateKey(collection Collection, id string) error {
	if !collection.IsValid() {
		return fmt.Errorf("docstore: unknown collection %q", collection)
	}
	if id == "" {
		return fmt.Errorf("docstore: document id required")
	}
	return nil
}

var errNilHandler = errors.New("docstore: subscription handler required")
