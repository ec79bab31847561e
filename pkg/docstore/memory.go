package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/locallink/locallink-backend/pkg/logger"
)

// MemoryStore keeps documents in process memory. It backs local development
// and tests and honours the same write preconditions as SQLStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[Collection]map[string]*Document
	hub  *hub
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	s := &MemoryStore{
		docs: map[Collection]map[string]*Document{},
		now:  time.Now,
	}
	s.hub = newHub(func(ctx context.Context, c Collection) ([]Document, error) {
		return s.LoadAll(ctx, c)
	}, log)
	return s
}

func (s *MemoryStore) Get(ctx context.Context, collection Collection, id string) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (s *MemoryStore) LoadAll(ctx context.Context, collection Collection, filters ...Filter) ([]Document, error) {
	if !collection.IsValid() {
		return nil, validateKey(collection, "-")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.docs[collection]))
	for _, doc := range s.docs[collection] {
		ok, err := matchesAll(doc.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Write(ctx context.Context, collection Collection, id string, fields map[string]any, opts ...WriteOption) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := newWriteConfig(opts)

	s.mu.Lock()
	current := s.docs[collection][id]
	next, err := apply(current, fields, cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var revision int64
	if current != nil {
		revision = current.Revision
	}
	doc := &Document{ID: id, Data: next, Revision: revision + 1, UpdatedAt: s.now().UTC()}
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]*Document{}
	}
	s.docs[collection][id] = doc
	out := cloneDocument(doc)
	s.mu.Unlock()

	s.hub.notify(collection)
	return &out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection Collection, fn SnapshotFunc) (Unsubscribe, error) {
	if !collection.IsValid() {
		return nil, validateKey(collection, "-")
	}
	if fn == nil {
		return nil, errNilHandler
	}
	return s.hub.subscribe(ctx, collection, fn), nil
}
