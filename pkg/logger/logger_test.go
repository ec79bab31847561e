package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestContextFieldsReachEveryEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithActor(ctx, "shop_9", "shop_owner")
	ctx = log.WithProductRequest(ctx, "pr_1")
	log.Error(ctx, "orders.accept.failed", errors.New("store offline"))

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "api", e["service"])
	assert.Equal(t, "req-123", e["request_id"])
	assert.Equal(t, "pr_1", e["product_request_id"])
	assert.Equal(t, "shop_9", e["actor_id"])
	assert.Equal(t, "shop_owner", e["actor_role"])
	assert.Equal(t, "store offline", e["error"])
	assert.NotEmpty(t, e["stack"])
}

func TestStackStartsAtCaller(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf}).Error(context.Background(), "boom", nil)

	stack := lines(t, buf)[0]["stack"].([]any)
	require.NotEmpty(t, stack)
	assert.Contains(t, stack[0], "TestStackStartsAtCaller")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, WarnStack: true}).Warn(context.Background(), "slow")
	assert.Contains(t, lines(t, buf)[0], "stack")

	buf.Reset()
	New(Options{Output: buf}).Warn(context.Background(), "slow")
	assert.NotContains(t, lines(t, buf)[0], "stack")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Level: "warn", Output: buf})
	log.Info(context.Background(), "hidden")
	log.Error(context.Background(), "hidden too", nil)
	assert.Contains(t, buf.String(), "hidden too")
	assert.NotContains(t, buf.String(), `"message":"hidden"`)
}

func TestDebugSampling(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Level: "debug", DebugSample: 5, Output: buf})
	for i := 0; i < 10; i++ {
		log.Debug(context.Background(), "market.stream.tick")
	}
	log.Info(context.Background(), "market.stream.closed")

	assert.Len(t, lines(t, buf), 3)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}

func TestNopIsSilent(t *testing.T) {
	log := Nop()
	ctx := log.WithOrderID(context.Background(), "ord_1")
	log.Error(ctx, "ignored", errors.New("x"))
}
