package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickRequestID(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{name: "client id", header: map[string]string{requestIDHeader: " req-123 "}, want: "req-123"},
		{name: "client id beats trace", header: map[string]string{requestIDHeader: "req-1", cloudTraceHeader: "abc/1;o=1"}, want: "req-1"},
		{name: "trace fallback", header: map[string]string{cloudTraceHeader: "105445aa7843bc8bf206b120001000/1;o=1"}, want: "105445aa7843bc8bf206b120001000"},
		{name: "unsafe client id", header: map[string]string{requestIDHeader: "bad id\r\nx", cloudTraceHeader: "trace9/2"}, want: "trace9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.header {
				h.Set(k, v)
			}
			assert.Equal(t, tc.want, pickRequestID(h))
		})
	}
}

func TestPickRequestIDMintsUUID(t *testing.T) {
	h := http.Header{}
	h.Set(requestIDHeader, strings.Repeat("a", maxRequestIDLen+1))
	_, err := uuid.Parse(pickRequestID(h))
	require.NoError(t, err)
}

func TestRequestIDEchoesHeader(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-xyz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-xyz", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "req-xyz", seen)
}
