package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behaviour every Store implementation shares.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), CollectionOrders, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("merge keeps untouched fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionOrders, "o1", map[string]any{
			"id":      "o1",
			"status":  "pending_assignment",
			"contact": map[string]any{"phone": "111", "name": "Asha"},
		})
		require.NoError(t, err)

		doc, err := s.Write(ctx, CollectionOrders, "o1", map[string]any{
			"status":  "assigned",
			"contact": map[string]any{"phone": "222"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Revision)

		got, err := s.Get(ctx, CollectionOrders, "o1")
		require.NoError(t, err)
		assert.Equal(t, "assigned", got.Data["status"])
		assert.Equal(t, "o1", got.Data["id"])
		assert.Equal(t, map[string]any{"phone": "222", "name": "Asha"}, got.Data["contact"])
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionUsers, "u1", map[string]any{"name": "A", "city": "Pune"})
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionUsers, "u1", map[string]any{"name": "B"}, Overwrite())
		require.NoError(t, err)

		got, err := s.Get(ctx, CollectionUsers, "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "B"}, got.Data)
	})

	t.Run("nil values are stripped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionUsers, "u1", map[string]any{"name": "A", "locality": nil})
		require.NoError(t, err)
		got, err := s.Get(ctx, CollectionUsers, "u1")
		require.NoError(t, err)
		_, present := got.Data["locality"]
		assert.False(t, present)
	})

	t.Run("when guards the write", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionOrders, "o1", map[string]any{"status": "pending_assignment"})
		require.NoError(t, err)

		_, err = s.Write(ctx, CollectionOrders, "o1",
			map[string]any{"status": "assigned", "deliveryPartnerId": "d1"},
			When("status", "pending_assignment"))
		require.NoError(t, err)

		_, err = s.Write(ctx, CollectionOrders, "o1",
			map[string]any{"status": "assigned", "deliveryPartnerId": "d2"},
			When("status", "pending_assignment"))
		require.ErrorIs(t, err, ErrPreconditionFailed)

		got, err := s.Get(ctx, CollectionOrders, "o1")
		require.NoError(t, err)
		assert.Equal(t, "d1", got.Data["deliveryPartnerId"])
		assert.Equal(t, int64(2), got.Revision)
	})

	t.Run("when nil matches a missing field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionRequests, "r1", map[string]any{"status": "broadcasted"})
		require.NoError(t, err)

		_, err = s.Write(ctx, CollectionRequests, "r1", map[string]any{"acceptedOfferId": "o1"},
			When("acceptedOfferId", nil, "o1"))
		require.NoError(t, err)
		// the holder may re-acquire, a rival may not
		_, err = s.Write(ctx, CollectionRequests, "r1", map[string]any{"acceptedOfferId": "o1"},
			When("acceptedOfferId", nil, "o1"))
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionRequests, "r1", map[string]any{"acceptedOfferId": "o2"},
			When("acceptedOfferId", nil, "o2"))
		require.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("when on missing document fails unless nil allowed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionOrders, "ghost", map[string]any{"status": "assigned"},
			When("status", "pending_assignment"))
		require.ErrorIs(t, err, ErrPreconditionFailed)
		_, err = s.Get(ctx, CollectionOrders, "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("booleans compare by value", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionOrders, "o1", map[string]any{"shopRated": false})
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionOrders, "o1", map[string]any{"shopRated": true}, When("shopRated", false, nil))
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionOrders, "o1", map[string]any{"shopRated": true}, When("shopRated", false, nil))
		require.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("if absent and revision", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc, err := s.Write(ctx, CollectionOffers, "of1", map[string]any{"price": "10"}, IfAbsent())
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionOffers, "of1", map[string]any{"price": "11"}, IfAbsent())
		require.ErrorIs(t, err, ErrPreconditionFailed)

		_, err = s.Write(ctx, CollectionOffers, "of1", map[string]any{"price": "12"}, IfRevision(doc.Revision))
		require.NoError(t, err)
		_, err = s.Write(ctx, CollectionOffers, "of1", map[string]any{"price": "13"}, IfRevision(doc.Revision))
		require.ErrorIs(t, err, ErrPreconditionFailed)

		_, err = s.Write(ctx, CollectionOffers, "of2", map[string]any{"price": "1"}, IfRevision(0))
		require.NoError(t, err)
	})

	t.Run("load all filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for id, req := range map[string]string{"a": "r1", "b": "r1", "c": "r2"} {
			_, err := s.Write(ctx, CollectionOffers, id, map[string]any{"requestId": req})
			require.NoError(t, err)
		}
		docs, err := s.LoadAll(ctx, CollectionOffers, Eq("requestId", "r1"))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "b", docs[1].ID)

		all, err := s.LoadAll(ctx, CollectionOffers)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("invalid keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, Collection("carts"), "x", map[string]any{})
		require.Error(t, err)
		_, err = s.Write(ctx, CollectionOrders, "", map[string]any{})
		require.Error(t, err)
	})

	t.Run("subscribe pushes initial and changed state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionRequests, "r1", map[string]any{"status": "broadcasted"})
		require.NoError(t, err)

		batches := make(chan []Document, 16)
		unsubscribe, err := s.Subscribe(ctx, CollectionRequests, func(docs []Document) {
			batches <- docs
		})
		require.NoError(t, err)
		defer unsubscribe()

		first := receive(t, batches)
		require.Len(t, first, 1)

		_, err = s.Write(ctx, CollectionRequests, "r2", map[string]any{"status": "broadcasted"})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			select {
			case docs := <-batches:
				return len(docs) == 2
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unsubscribe is idempotent and stops delivery", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var mu sync.Mutex
		calls := 0
		unsubscribe, err := s.Subscribe(ctx, CollectionUpdates, func([]Document) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return calls == 1
		}, 2*time.Second, 10*time.Millisecond)

		unsubscribe()
		unsubscribe()

		_, err = s.Write(ctx, CollectionUpdates, "u1", map[string]any{"text": "fresh bread"})
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, calls)
	})

	t.Run("subscribe requires handler", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Subscribe(context.Background(), CollectionOrders, nil)
		require.Error(t, err)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Write(ctx, CollectionOrders, "o1", map[string]any{"status": "pending_assignment"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(partner int) {
				defer wg.Done()
				_, err := s.Write(ctx, CollectionOrders, "o1",
					map[string]any{"status": "assigned", "deliveryPartnerId": partner},
					When("status", "pending_assignment"))
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrPreconditionFailed):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func receive(t *testing.T, ch <-chan []Document) []Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
