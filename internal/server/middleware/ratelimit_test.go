package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/logging"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "limits are per client")
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Close()
	rl.window = 20 * time.Millisecond
	ctx := context.Background()

	ok, _ := rl.Allow(ctx, "c")
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "c")
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, _ = rl.Allow(ctx, "c")
	assert.True(t, ok)
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := NewRateLimiter(50)
	defer rl.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.Allow(context.Background(), "same"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Close()
	handler := RateLimit(rl, logging.NewNopLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, w.Body.String())
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	logger := logging.NewTestLogger(t)
	handler := RateLimit(failingLimiter{}, logger.Logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, logger.Contains("backend down"))
}

func TestClientKey(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		remote    string
		forwarded string
		trusted   TrustedProxies
		want      string
	}{
		{name: "remote host", remote: "192.168.1.9:4000", want: "192.168.1.9"},
		{name: "forwarded ignored without trusted proxies", remote: "192.168.1.9:4000", forwarded: "203.0.113.7", want: "192.168.1.9"},
		{name: "forwarded ignored from untrusted peer", remote: "198.51.100.4:4000", forwarded: "203.0.113.7", trusted: trusted, want: "198.51.100.4"},
		{name: "single trusted hop", remote: "10.1.2.3:4000", forwarded: "203.0.113.7", trusted: trusted, want: "203.0.113.7"},
		{name: "spoofed leading hop skipped", remote: "10.1.2.3:4000", forwarded: "1.1.1.1, 203.0.113.7", trusted: trusted, want: "203.0.113.7"},
		{name: "trusted chain walked", remote: "192.0.2.1:4000", forwarded: "203.0.113.7, 10.0.0.5", trusted: trusted, want: "203.0.113.7"},
		{name: "all hops trusted", remote: "10.1.2.3:4000", forwarded: "10.9.9.9", trusted: trusted, want: "10.9.9.9"},
		{name: "trusted peer without header", remote: "10.1.2.3:4000", trusted: trusted, want: "10.1.2.3"},
		{name: "bare remote addr", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientKey(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1", "192.0.2.1"})
	require.NoError(t, err)
	assert.Len(t, tp, 3)
	assert.True(t, tp.trusts("10.200.0.1"))
	assert.True(t, tp.trusts("::1"))
	assert.True(t, tp.trusts("::ffff:192.0.2.1"))
	assert.False(t, tp.trusts("192.0.2.2"))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Close()
	handler := RateLimit(rl, logging.NewNopLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, spoof := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:4000"
		req.Header.Set("X-Forwarded-For", spoof)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRedisRateLimiterUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	rl := NewRedisRateLimiter(rdb, 0, 0, "")
	assert.Equal(t, 60, rl.limit)
	assert.Equal(t, time.Minute, rl.window)
	assert.Equal(t, "retailchain:rl", rl.prefix)

	_, err := rl.Allow(context.Background(), "client")
	assert.Error(t, err)
}

// scriptRedis evaluates the fixed-window script in memory: INCR on the key
// and PEXPIRE on the first hit.
type scriptRedis struct {
	redis.Scripter
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]int64
	asText bool
}

func newScriptRedis() *scriptRedis {
	return &scriptRedis{counts: map[string]int64{}, ttls: map[string]int64{}}
}

func (f *scriptRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.eval(ctx, keys, args)
}

func (f *scriptRedis) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.eval(ctx, keys, args)
}

func (f *scriptRedis) eval(ctx context.Context, keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[keys[0]]++
	current := f.counts[keys[0]]
	if current == 1 {
		f.ttls[keys[0]] = args[0].(int64)
	}
	cmd := redis.NewCmd(ctx)
	if f.asText {
		cmd.SetVal(strconv.FormatInt(current, 10))
	} else {
		cmd.SetVal(current)
	}
	return cmd
}

func (f *scriptRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, key)
	delete(f.ttls, key)
}

func TestRedisRateLimiterCountsPerWindow(t *testing.T) {
	rdb := newScriptRedis()
	rl := NewRedisRateLimiter(rdb, 2, 30*time.Second, "test:rl")
	ctx := context.Background()

	for i, want := range []bool{true, true, false, false} {
		ok, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i+1)
	}

	ok, err := rl.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "other clients have their own window")

	assert.Equal(t, int64(4), rdb.counts["test:rl:10.0.0.1"])
	assert.Equal(t, int64(30000), rdb.ttls["test:rl:10.0.0.1"])

	rdb.expire("test:rl:10.0.0.1")
	ok, err = rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts after the key expires")
}

func TestRedisRateLimiterParsesTextReplies(t *testing.T) {
	rdb := newScriptRedis()
	rdb.asText = true
	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "")

	ok, err := rl.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, rdb.counts, "retailchain:rl:client")
}

func TestRedisRateLimiterBehindMiddleware(t *testing.T) {
	rl := NewRedisRateLimiter(newScriptRedis(), 1, time.Minute, "")
	handler := RateLimit(rl, logging.NewNopLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = "192.0.2.5:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
