package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/locallink/locallink-backend/pkg/db"
	"github.com/locallink/locallink-backend/pkg/db/models"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultWriteRetries = 3
	writeRetryDelay     = 15 * time.Millisecond
)

// ErrContention means a write kept losing revision races and gave up.
var ErrContention = errors.New("docstore: write contention")

var errRevisionRace = errors.New("docstore: revision race")

// SQLOptions configure a SQLStore.
type SQLOptions struct {
	// Feed propagates change notifications to other processes. Nil keeps
	// notifications in-process.
	Feed           ChangeFeed
	WriteRetries   int
	ResyncInterval time.Duration
	Logger         *logger.Logger
}

// SQLStore persists documents in the `documents` table through GORM. Writes
// run in a transaction that reads the current row (FOR UPDATE on Postgres),
// evaluates preconditions and updates guarded by the stored revision.
type SQLStore struct {
	client  *db.Client
	hub     *hub
	feed    ChangeFeed
	retries uint64
	resync  time.Duration
	log     *logger.Logger
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wires a SQLStore on an open database client.
func NewSQLStore(client *db.Client, opts SQLOptions) (*SQLStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	retries := opts.WriteRetries
	if retries <= 0 {
		retries = defaultWriteRetries
	}
	s := &SQLStore{
		client:  client,
		feed:    opts.Feed,
		retries: uint64(retries),
		resync:  opts.ResyncInterval,
		log:     log,
		now:     time.Now,
	}
	s.hub = newHub(func(ctx context.Context, c Collection) ([]Document, error) {
		return s.LoadAll(ctx, c)
	}, log)
	return s, nil
}

func (s *SQLStore) Get(ctx context.Context, collection Collection, id string) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	var row models.Document
	err := s.client.DB().WithContext(ctx).
		Where("collection = ? AND id = ?", string(collection), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return rowToDocument(row)
}

func (s *SQLStore) LoadAll(ctx context.Context, collection Collection, filters ...Filter) ([]Document, error) {
	if !collection.IsValid() {
		return nil, validateKey(collection, "-")
	}
	var rows []models.Document
	err := s.client.DB().WithContext(ctx).
		Where("collection = ?", string(collection)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("docstore: load %s: %w", collection, err)
	}

	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := rowToDocument(row)
		if err != nil {
			return nil, err
		}
		ok, err := matchesAll(doc.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *SQLStore) Write(ctx context.Context, collection Collection, id string, fields map[string]any, opts ...WriteOption) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	cfg := newWriteConfig(opts)

	var out *Document
	backoff := retry.WithMaxRetries(s.retries, retry.NewConstant(writeRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, err := s.writeOnce(ctx, collection, id, fields, cfg)
		if errors.Is(err, errRevisionRace) || db.IsTransient(err) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out = doc
		return nil
	})
	if errors.Is(err, errRevisionRace) || db.IsTransient(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrContention, collection, id)
	}
	if err != nil {
		return nil, err
	}

	s.hub.notify(collection)
	if s.feed != nil {
		if pubErr := s.feed.Publish(ctx, collection); pubErr != nil {
			s.log.Warn(s.log.WithFields(ctx, map[string]any{
				"collection": string(collection),
				"error":      pubErr.Error(),
			}), "docstore.feed.publish_failed")
		}
	}
	return out, nil
}

func (s *SQLStore) writeOnce(ctx context.Context, collection Collection, id string, fields map[string]any, cfg writeConfig) (*Document, error) {
	var out *Document
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		query := tx.Where("collection = ? AND id = ?", string(collection), id)
		if s.client.Dialect() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row models.Document
		var current *Document
		err := query.Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("docstore: read %s/%s: %w", collection, id, err)
		default:
			current, err = rowToDocument(row)
			if err != nil {
				return err
			}
		}

		next, err := apply(current, fields, cfg)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
		}
		nowMs := s.now().UnixMilli()

		if current == nil {
			row = models.Document{
				Collection: string(collection),
				ID:         id,
				Data:       string(raw),
				Revision:   1,
				CreatedAt:  nowMs,
				UpdatedAt:  nowMs,
			}
			if err := tx.Create(&row).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return errRevisionRace
				}
				return fmt.Errorf("docstore: insert %s/%s: %w", collection, id, err)
			}
		} else {
			res := tx.Model(&models.Document{}).
				Where("collection = ? AND id = ? AND revision = ?", string(collection), id, current.Revision).
				Updates(map[string]any{
					"data":       string(raw),
					"revision":   current.Revision + 1,
					"updated_at": nowMs,
				})
			if res.Error != nil {
				return fmt.Errorf("docstore: update %s/%s: %w", collection, id, res.Error)
			}
			if res.RowsAffected == 0 {
				return errRevisionRace
			}
			row.Revision = current.Revision + 1
			row.UpdatedAt = nowMs
		}

		out = &Document{
			ID:        id,
			Data:      next,
			Revision:  row.Revision,
			UpdatedAt: time.UnixMilli(nowMs).UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) Subscribe(ctx context.Context, collection Collection, fn SnapshotFunc) (Unsubscribe, error) {
	if !collection.IsValid() {
		return nil, validateKey(collection, "-")
	}
	if fn == nil {
		return nil, errNilHandler
	}
	return s.hub.subscribe(ctx, collection, fn), nil
}

// Run relays remote change notifications and periodically re-pushes full
// state to subscribers so a dropped notification heals on the next tick. It
// blocks until ctx is canceled.
func (s *SQLStore) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.feed != nil {
		g.Go(func() error {
			return s.feed.Listen(gctx, s.hub.notify)
		})
	}
	if s.resync > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(s.resync)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					s.hub.notifyAll()
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func rowToDocument(row models.Document) (*Document, error) {
	data, err := decodeMap([]byte(row.Data))
	if err != nil {
		return nil, fmt.Errorf("docstore: corrupt document %s/%s: %w", row.Collection, row.ID, err)
	}
	return &Document{
		ID:        row.ID,
		Data:      data,
		Revision:  row.Revision,
		UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}
