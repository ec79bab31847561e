package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/internal/users"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
)

// peekLimit bounds how much of an auth body is buffered to find the phone.
const peekLimit = 16 << 10

type hitCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	RateLimitKey(scope string) string
}

// ThrottlePolicy caps attempts on an auth endpoint per client address and
// per phone number within one fixed window. A zero limit disables that
// dimension.
type ThrottlePolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerPhone int
}

func (p ThrottlePolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerPhone > 0)
}

// Throttle rejects login and registration bursts with 429 and a Retry-After
// matching what is left of the window. Phones are counted after
// normalization so formatting tricks share one counter.
func Throttle(policy ThrottlePolicy, counter hitCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	name := strings.ToLower(strings.TrimSpace(policy.Name))
	if name == "" {
		name = "auth"
	}
	return func(next http.Handler) http.Handler {
		if !policy.active() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.PerIP > 0 {
				if ip := remoteIP(r); ip != "" {
					if !admit(ctx, w, counter, logg, policy, name, "ip", ip, policy.PerIP) {
						return
					}
				}
			}

			if policy.PerPhone > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, peekLimit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

				if phone := phoneOf(body); phone != "" {
					if !admit(ctx, w, counter, logg, policy, name, "phone", digest(phone), policy.PerPhone) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// admit counts one hit and writes the rejection itself when the caller is
// over the limit or the counter is unavailable.
func admit(ctx context.Context, w http.ResponseWriter, counter hitCounter, logg *logger.Logger, policy ThrottlePolicy, name, dimension, subject string, limit int) bool {
	key := counter.RateLimitKey(name + ":" + dimension + ":" + subject)
	count, left, err := counter.Hit(ctx, key, policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
		return false
	}
	if count <= int64(limit) {
		return true
	}

	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    name,
			"dimension": dimension,
			"subject":   subject,
			"attempts":  count,
			"limit":     limit,
		}), "auth.throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(left, policy.Window)))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts"))
	return false
}

func retrySeconds(left, window time.Duration) int {
	if left <= 0 {
		left = window
	}
	return max(1, int(math.Ceil(left.Seconds())))
}

// remoteIP prefers the proxy-supplied client address. Cloud Run and most
// load balancers append the real peer to X-Forwarded-For, so the first
// entry is the original client.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host
}

func phoneOf(body []byte) string {
	var probe struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return ""
	}
	return users.NormalizePhone(probe.PhoneNumber)
}

// digest keeps raw phone numbers out of redis keys and logs.
func digest(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:12])
}
