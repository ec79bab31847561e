package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/locallink/locallink-backend/api/middleware"
	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/internal/notifications"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/docstore"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/types"
)

const (
	defaultStreamHeartbeat = 25 * time.Second

	streamEventMarket    = "market"
	streamEventHeartbeat = "heartbeat"
)

// StreamParams wires the live market stream.
type StreamParams struct {
	Store         docstore.Store
	Users         users.Service
	Notifications notifications.Service
	Metrics       *metrics.MarketMetrics
	Heartbeat     time.Duration
	UpdatesLimit  int
	Logger        *logger.Logger
}

// coalescer keeps the newest snapshot and every signal raised since the
// last frame so store callbacks never block on a slow client.
type coalescer struct {
	mu      sync.Mutex
	pending market.Update
	has     bool
	ready   chan struct{}
}

func newCoalescer() *coalescer {
	return &coalescer{ready: make(chan struct{}, 1)}
}

func (c *coalescer) push(u market.Update) {
	c.mu.Lock()
	c.pending.Snapshot = u.Snapshot
	c.pending.Signals = append(c.pending.Signals, u.Signals...)
	c.has = true
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *coalescer) take() (market.Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return market.Update{}, false
	}
	out := c.pending
	c.pending = market.Update{}
	c.has = false
	return out, true
}

// MarketStream serves the caller's live marketplace view as server-sent
// events. The session starts at login, or at the since query (unix millis)
// when a reconnecting client supplies one. Signals raised for the caller are
// also written to their inbox.
func MarketStream(p StreamParams) http.HandlerFunc {
	heartbeat := p.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}
	logg := p.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if p.Store == nil {
			responses.WriteError(ctx, logg, w, unavailable("market"))
			return
		}
		actor, err := currentActor(ctx, p.Users)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		startedAt, err := streamSessionStart(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		engine, err := market.NewEngine(p.Store, market.Session{Actor: actor, StartedAt: startedAt}, market.Options{
			Logger:       logg,
			UpdatesLimit: p.UpdatesLimit,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "start market session"))
			return
		}

		updates := newCoalescer()
		sub, err := engine.Subscribe(ctx, updates.push)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to market"))
			return
		}
		defer sub.Unsubscribe()

		p.Metrics.StreamOpened()
		defer p.Metrics.StreamClosed()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "market.stream.flush_unsupported")
			return
		}

		logg.Info(ctx, "market.stream.opened")
		defer logg.Info(ctx, "market.stream.closed")

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := types.StreamEvent{Event: streamEventHeartbeat, Data: map[string]int64{"at": time.Now().UnixMilli()}}
				if err := writeStreamEvent(w, rc, frame); err != nil {
					return
				}
			case <-updates.ready:
				update, ok := updates.take()
				if !ok {
					continue
				}
				if err := writeStreamEvent(w, rc, types.StreamEvent{Event: streamEventMarket, Data: update}); err != nil {
					logg.Debug(logg.WithField(ctx, "error", err.Error()), "market.stream.write_failed")
					return
				}
				if len(update.Signals) > 0 && p.Notifications != nil {
					if err := p.Notifications.RecordSignals(ctx, actor.ID, update.Signals); err != nil {
						logg.Warn(logg.WithField(ctx, "error", err.Error()), "market.stream.record_signals_failed")
					}
				}
			}
		}
	}
}

func streamSessionStart(r *http.Request) (time.Time, error) {
	since, ok, err := validators.ParseQueryMillis(r, "since")
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return since, nil
	}
	if start := middleware.SessionStartFromContext(r.Context()); !start.IsZero() {
		return start, nil
	}
	return time.Now(), nil
}

func writeStreamEvent(w http.ResponseWriter, rc *http.ResponseController, ev types.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, payload); err != nil {
		return err
	}
	return rc.Flush()
}
