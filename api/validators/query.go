package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads an optional bounded integer such as a page limit.
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "must be a whole number")
	}
	if n < lo || n > hi {
		return 0, queryError(key, "must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}

// ParseQueryMillis reads a unix-millisecond timestamp. ok is false when the
// parameter is absent.
func ParseQueryMillis(r *http.Request, key string) (t time.Time, ok bool, err error) {
	raw := queryValue(r, key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false, queryError(key, "must be unix milliseconds")
	}
	return time.UnixMilli(ms), true, nil
}

func queryError(key, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, key+" "+msg).WithDetails(map[string]string{key: msg})
}
