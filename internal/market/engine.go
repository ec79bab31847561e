package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

// Session identifies who is watching the market and since when. Items
// created at or before StartedAt never raise signals.
type Session struct {
	Actor     models.Actor
	StartedAt time.Time
}

// Update is delivered to subscribers after every merge once all collections
// have reported at least once.
type Update struct {
	Snapshot Snapshot `json:"snapshot"`
	Signals  []Signal `json:"signals,omitempty"`
}

// Handler receives merged updates. Calls are serialized per subscription.
type Handler func(Update)

// Options tune an Engine.
type Options struct {
	Logger       *logger.Logger
	Now          func() time.Time
	UpdatesLimit int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.UpdatesLimit <= 0 {
		o.UpdatesLimit = defaultUpdatesLimit
	}
	return o
}

// Engine keeps a live marketplace snapshot for one session.
type Engine struct {
	store   docstore.Store
	session Session
	opts    Options
}

// NewEngine builds an engine for session over store.
func NewEngine(store docstore.Store, session Session, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if session.Actor.ID == "" {
		return nil, fmt.Errorf("session actor required")
	}
	if session.StartedAt.IsZero() {
		return nil, fmt.Errorf("session start required")
	}
	return &Engine{store: store, session: session, opts: opts.withDefaults()}, nil
}

// Subscription is a live attachment of a handler to the four market
// collections.
type Subscription struct {
	engine  *Engine
	handler Handler
	ctx     context.Context

	// deliverMu serializes merge+deliver so handlers observe batches in order
	deliverMu sync.Mutex

	mu       sync.Mutex
	current  Snapshot
	received map[docstore.Collection]bool
	ready    bool

	closed atomic.Bool
	once   sync.Once
	unsubs []docstore.Unsubscribe
}

// Subscribe attaches handler. The handler is first called once every
// collection has delivered its initial state; that first update carries no
// signals.
func (e *Engine) Subscribe(ctx context.Context, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	sub := &Subscription{
		engine:   e,
		handler:  handler,
		ctx:      ctx,
		received: map[docstore.Collection]bool{},
	}

	sub.mu.Lock()
	for _, c := range marketCollections {
		c := c
		unsub, err := e.store.Subscribe(ctx, c, func(docs []docstore.Document) {
			sub.onBatch(c, docs)
		})
		if err != nil {
			sub.mu.Unlock()
			sub.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", c, err)
		}
		sub.unsubs = append(sub.unsubs, unsub)
	}
	sub.mu.Unlock()
	return sub, nil
}

// Unsubscribe detaches every collection subscription. It is idempotent and
// safe to call from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
	})
}

// Snapshot returns the latest merged snapshot and whether it is complete.
func (s *Subscription) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone(), s.ready
}

func (s *Subscription) onBatch(c docstore.Collection, docs []docstore.Document) {
	if s.closed.Load() {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	update, ok := s.merge(c, docs)
	if !ok || s.closed.Load() {
		return
	}
	s.handler(update)
}

func (s *Subscription) merge(c docstore.Collection, docs []docstore.Document) (Update, bool) {
	e := s.engine
	now := e.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	errs := s.current.replace(c, docs, now, e.opts.UpdatesLimit)
	logInvalid(s.ctx, e.opts.Logger, c, errs)

	s.received[c] = true
	if len(s.received) < len(marketCollections) {
		return Update{}, false
	}

	var signals []Signal
	if s.ready {
		d := detector{
			actor:     e.session.Actor,
			sessionMs: e.session.StartedAt.UnixMilli(),
			nowMs:     now.UnixMilli(),
		}
		switch c {
		case docstore.CollectionRequests:
			signals = d.requests(prev.Requests, s.current.Requests)
		case docstore.CollectionOffers:
			signals = d.offers(prev.Offers, s.current.Offers)
		case docstore.CollectionOrders:
			signals = d.orders(prev.Orders, s.current.Orders)
		}
	}
	s.ready = true
	return Update{Snapshot: s.current.clone(), Signals: signals}, true
}
