package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"golang.org/x/time/rate"
)

// Limit is a token bucket: Requests per Per on average, with up to Burst at
// once. The zero Limit disables limiting.
type Limit struct {
	Requests int
	Per      time.Duration
	Burst    int // defaults to Requests
}

// PerMinute is a Limit of n requests a minute with a burst of n.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Per: time.Minute, Burst: n}
}

func (l Limit) Enabled() bool { return l.Requests > 0 && l.Per > 0 }

func (l Limit) burst() int {
	if l.Burst > 0 {
		return l.Burst
	}
	return l.Requests
}

// refill is how long an empty bucket takes to fill up again.
func (l Limit) refill() time.Duration {
	return time.Duration(int64(l.Per) * int64(l.burst()) / int64(l.Requests))
}

// String renders l in the form ParseLimit reads.
func (l Limit) String() string {
	if !l.Enabled() {
		return "off"
	}
	if l.burst() == l.Requests {
		return fmt.Sprintf("%d/%s", l.Requests, l.Per)
	}
	return fmt.Sprintf("%d/%s/%d", l.Requests, l.Per, l.burst())
}

var ErrBadLimit = errors.New("httpx: limit must look like 5/1m, 5/1m/10 or off")

// ParseLimit reads "requests/period[/burst]", e.g. "5/1m" or "100/1m/200".
// "off" and "0" disable the limit.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "off" || s == "0" {
		return Limit{}, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Limit{}, ErrBadLimit
	}
	requests, err := strconv.Atoi(parts[0])
	if err != nil || requests <= 0 {
		return Limit{}, ErrBadLimit
	}
	per, err := time.ParseDuration(parts[1])
	if err != nil || per <= 0 {
		return Limit{}, ErrBadLimit
	}
	l := Limit{Requests: requests, Per: per, Burst: requests}
	if len(parts) == 3 {
		if l.Burst, err = strconv.Atoi(parts[2]); err != nil || l.Burst <= 0 {
			return Limit{}, ErrBadLimit
		}
	}
	return l, nil
}

// KeyFunc picks the bucket a request draws from. An empty key skips limiting.
type KeyFunc func(*http.Request) string

// ClientIP is the first X-Forwarded-For hop, else X-Real-IP, else the peer
// address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ByIP keys on the client address.
func ByIP(r *http.Request) string { return ClientIP(r) }

// ByIPAndField keys on the client address plus a lower-cased form field, so
// guessing against one account and spraying across many are both bounded.
func ByIPAndField(field string) KeyFunc {
	return func(r *http.Request) string {
		ip := ClientIP(r)
		if err := r.ParseForm(); err != nil {
			return ip
		}
		v := strings.ToLower(strings.TrimSpace(r.PostFormValue(field)))
		if v == "" {
			return ip
		}
		return ip + "|" + v
	}
}

// ByUser keys on the signed-in user, falling back to the client address.
func ByUser(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID
	}
	return ClientIP(r)
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter holds one token bucket per key.
type Limiter struct {
	limit Limit
	key   KeyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewLimiter(l Limit, key KeyFunc) *Limiter {
	return &Limiter{limit: l, key: key, now: time.Now, buckets: make(map[string]*bucket)}
}

// WithClock swaps the time source. Tests use it to step past the window.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow takes a token for key. When the bucket is empty it reports how long
// until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if !l.limit.Enabled() {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.limit.Per / time.Duration(l.limit.Requests))
		b = &bucket{lim: rate.NewLimiter(every, l.limit.burst())}
		l.buckets[key] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	res := b.lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return false, wait
}

// sweep drops buckets idle long enough to have refilled. Runs at most once a
// minute.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	idle := max(l.limit.refill(), time.Minute)
	for k, b := range l.buckets {
		if now.Sub(b.seen) > idle {
			delete(l.buckets, k)
		}
	}
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware answers 429 once a key's bucket is empty. JSON clients get an
// error object, pages get plain text.
func (l *Limiter) Middleware(name string) Middleware {
	return func(next http.Handler) http.Handler {
		if !l.limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := l.Allow(key)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(wait.Round(time.Second)/time.Second), 1)
			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"limit", name,
				"key", key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", l.limit.String())
			if !WantsJSON(r) {
				NoCache(w)
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

// RateLimit is NewLimiter(l, key).Middleware(name).
func RateLimit(name string, l Limit, key KeyFunc) Middleware {
	return NewLimiter(l, key).Middleware(name)
}
