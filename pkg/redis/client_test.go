package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestHitCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	scripts := newFakeScripter()
	client := &Client{scripts: scripts}
	key := client.RateLimitKey("login:ip:1.2.3.4")

	for want := int64(1); want <= 3; want++ {
		count, left, err := client.Hit(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", want, err)
		}
		if count != want {
			t.Fatalf("expected count %d got %d", want, count)
		}
		if left != time.Minute {
			t.Fatalf("expected a minute left, got %s", left)
		}
	}

	if _, _, err := client.Hit(ctx, key, 0); err == nil {
		t.Fatal("expected zero window to be rejected")
	}
	if _, _, err := (&Client{}).Hit(ctx, key, time.Minute); err == nil {
		t.Fatal("expected error from zero client")
	}
}

func TestOwnerCheckedLockOps(t *testing.T) {
	ctx := context.Background()
	scripts := newFakeScripter()
	client := &Client{scripts: scripts}
	key := client.LockKey("cron-worker:test")
	scripts.values[key] = "owner-a"

	ok, err := client.ExpireIfEquals(ctx, key, "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("foreign owner must not extend, ok=%v err=%v", ok, err)
	}
	ok, err = client.ExpireIfEquals(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner should extend, ok=%v err=%v", ok, err)
	}
	ok, err = client.DeleteIfEquals(ctx, key, "owner-b")
	if err != nil || ok {
		t.Fatalf("foreign owner must not delete, ok=%v err=%v", ok, err)
	}
	ok, err = client.DeleteIfEquals(ctx, key, "owner-a")
	if err != nil || !ok {
		t.Fatalf("owner should delete, ok=%v err=%v", ok, err)
	}
	if _, exists := scripts.values[key]; exists {
		t.Fatal("lock key should be gone")
	}
}

func TestPushCappedKeepsNewest(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.InboxKey("cust-1")

	for i := 0; i < 5; i++ {
		if err := client.PushCapped(ctx, key, fmt.Sprintf("n%d", i), 3); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	got, err := client.Range(ctx, key, 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []string{"n4", "n3", "n2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPublishAndSetNX(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Publish(ctx, "ll:docstore:changes", "offers"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mock.published) != 1 || mock.published[0] != "ll:docstore:changes=offers" {
		t.Fatalf("unexpected published messages %v", mock.published)
	}

	ok, err := client.SetNX(ctx, client.IdempotencyKey("dead_lead", "req-1"), "1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, _ = client.SetNX(ctx, client.IdempotencyKey("dead_lead", "req-1"), "1", time.Hour)
	if ok {
		t.Fatalf("second setnx must lose")
	}
	if err := client.Del(ctx, client.IdempotencyKey("dead_lead", "req-1")); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, client.IdempotencyKey("dead_lead", "req-1")); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from zero client")
	}
	if err := client.Listen(context.Background(), "chan", func(string) {}); err == nil {
		t.Fatal("expected listen to fail without a raw client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on zero client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "ll:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "ll:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.AccessSessionKey("jti"); got != "ll:session:access:jti" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.InboxKey(""); got != "ll:inbox" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.LockKey("cron-worker"); got != "ll:lock:cron-worker" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

type mockCmdable struct {
	data      map[string]string
	lists     map[string][]string
	published []string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:  make(map[string]string),
		lists: make(map[string][]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
		delete(m.lists, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append([]string{fmt.Sprint(v)}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	list := m.lists[key]
	if stop+1 < int64(len(list)) {
		m.lists[key] = list[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	list := m.lists[key]
	if stop < 0 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return redis.NewStringSliceResult(nil, nil)
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel+"="+fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

// fakeScripter answers EvalSha for the package scripts by hash and evaluates
// them in Go.
type fakeScripter struct {
	values map[string]string
	hits   map[string]int64
	ttls   map[string]int64
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{
		values: make(map[string]string),
		hits:   make(map[string]int64),
		ttls:   make(map[string]int64),
	}
}

func (f *fakeScripter) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch sha {
	case hitScript.Hash():
		f.hits[key]++
		if f.hits[key] == 1 {
			f.ttls[key] = args[0].(int64)
		}
		return redis.NewCmdResult([]any{f.hits[key], f.ttls[key]}, nil)
	case deleteIfEqualsScript.Hash():
		if f.values[key] != args[0] {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(f.values, key)
		return redis.NewCmdResult(int64(1), nil)
	case expireIfEqualsScript.Hash():
		if f.values[key] != args[0] {
			return redis.NewCmdResult(int64(0), nil)
		}
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (f *fakeScripter) Eval(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not supported"))
}

func (f *fakeScripter) EvalRO(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not supported"))
}

func (f *fakeScripter) EvalShaRO(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not supported"))
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
