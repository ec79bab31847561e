package docstore

import (
	"context"
	"sync"

	"github.com/locallink/locallink-backend/pkg/logger"
)

type loadFunc func(ctx context.Context, collection Collection) ([]Document, error)

// hub fans change notifications out to subscribers. Each subscriber owns a
// goroutine and a one-slot wake channel, so bursts of writes coalesce into a
// single reload and a slow handler never blocks writers.
type hub struct {
	load loadFunc
	log  *logger.Logger

	mu   sync.Mutex
	next uint64
	subs map[Collection]map[uint64]*subscriber
}

type subscriber struct {
	fn   SnapshotFunc
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newHub(load loadFunc, log *logger.Logger) *hub {
	if log == nil {
		log = logger.Nop()
	}
	return &hub{
		load: load,
		log:  log,
		subs: map[Collection]map[uint64]*subscriber{},
	}
}

func (h *hub) subscribe(ctx context.Context, collection Collection, fn SnapshotFunc) Unsubscribe {
	sub := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	// initial push of the full collection
	sub.wake <- struct{}{}

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[collection] == nil {
		h.subs[collection] = map[uint64]*subscriber{}
	}
	h.subs[collection][id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			close(sub.done)
			h.mu.Lock()
			delete(h.subs[collection], id)
			h.mu.Unlock()
		})
	}

	go h.run(ctx, collection, sub, unsubscribe)
	return unsubscribe
}

func (h *hub) run(ctx context.Context, collection Collection, sub *subscriber, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-sub.wake:
		}

		docs, err := h.load(ctx, collection)
		if err != nil {
			// keep the subscriber alive; the next change or resync retries
			h.log.Warn(h.log.WithFields(ctx, map[string]any{
				"collection": string(collection),
				"error":      err.Error(),
			}), "docstore.subscribe.load_failed")
			continue
		}

		select {
		case <-sub.done:
			return
		default:
		}
		sub.fn(docs)
	}
}

// notify wakes every subscriber of collection without blocking.
func (h *hub) notify(collection Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[collection] {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// notifyAll wakes every subscriber; used by periodic resync.
func (h *hub) notifyAll() {
	for _, c := range validCollections {
		h.notify(c)
	}
}

func (h *hub) subscriberCount(collection Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}
