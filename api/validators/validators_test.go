package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
)

type rateBody struct {
	Stars   int    `json:"stars" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=5"`
	Role    string `json:"role" validate:"omitempty,oneof=customer shop_owner"`
}

func decode(t *testing.T, body string) (rateBody, *pkgerrors.Error) {
	t.Helper()
	var dest rateBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &dest)
	if err == nil {
		return dest, nil
	}
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %T", err)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	return dest, typed
}

func TestDecodeJSONBody(t *testing.T) {
	got, err := decode(t, `{"stars":4,"comment":"ok"}`)
	require.Nil(t, err)
	assert.Equal(t, 4, got.Stars)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
		field   string
		detail  string
	}{
		{name: "empty", body: "", message: "request body is required"},
		{name: "trailing", body: `{"stars":1}{"stars":2}`, message: "single JSON object"},
		{name: "unknown field", body: `{"stars":1,"tip":5}`, field: "tip", detail: "is not a known field"},
		{name: "wrong type", body: `{"stars":"five"}`, field: "stars", detail: "must be of type int"},
		{name: "range", body: `{"stars":9}`, field: "stars", detail: "must be at most 5"},
		{name: "string length", body: `{"stars":1,"comment":"too long"}`, field: "comment", detail: "must be at most 5 characters"},
		{name: "oneof", body: `{"stars":1,"role":"admin"}`, field: "role", detail: "must be one of: customer, shop_owner"},
		{name: "missing", body: `{}`, field: "stars", detail: "is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decode(t, tc.body)
			require.NotNil(t, err)
			if tc.message != "" {
				assert.Contains(t, err.Message(), tc.message)
			}
			if tc.field != "" {
				details, ok := err.Details().(map[string]string)
				require.True(t, ok, "details %#v", err.Details())
				assert.Equal(t, tc.detail, details[tc.field])
			}
		})
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	huge := `{"comment":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	_, err := decode(t, huge)
	require.NotNil(t, err)
	assert.Contains(t, err.Message(), "exceeds")
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Sharma Kirana Store", SanitizeString("  Sharma \t Kirana\x00  Store ", 0))
	assert.Equal(t, "नमस्ते", SanitizeString("नमस्ते दुनिया", 6))
	assert.Empty(t, SanitizeString(" \n\t ", 10))
}

func TestSanitizeMultiline(t *testing.T) {
	in := "  Fresh mangoes in  stock\r\n\r\n\r\n\nAlphonso   only \n\n"
	assert.Equal(t, "Fresh mangoes in stock\n\nAlphonso only", SanitizeMultiline(in, 0))
	assert.Equal(t, "Fresh", SanitizeMultiline(in, 5))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x&big=900", nil)

	n, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	assert.ErrorContains(t, err, "whole number")
	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	assert.ErrorContains(t, err, "between 1 and 100")
}

func TestParseQueryMillis(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?since=1700000000000&neg=-4", nil)

	ts, ok, err := ParseQueryMillis(req, "since")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(time.UnixMilli(1700000000000)))

	_, ok, err = ParseQueryMillis(req, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseQueryMillis(req, "neg")
	assert.Error(t, err)
}
