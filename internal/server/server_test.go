package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/retailchain/cmd/application"
	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/store/memory"
	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/logging"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// newMockApplication wires a seeded in-memory catalog to a fresh notifier.
func newMockApplication(t *testing.T) *application.Mock {
	t.Helper()

	store, err := memory.New()
	require.NoError(t, err)

	n := notifier.New(notifier.WithLogger(logging.NewNopLogger()))
	t.Cleanup(n.Close)

	svc, err := catalog.NewService(store, n)
	require.NoError(t, err)

	return &application.Mock{
		CatalogFunc:  func(context.Context) (*catalog.Service, error) { return svc, nil },
		NotifierFunc: func() *notifier.Notifier { return n },
		ReadyFunc:    store.Ping,
		LoggerFunc:   logging.NewNopLogger,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, app application.Application, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(context.Background(), app, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func do(t *testing.T, method, url, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeProduct(t *testing.T, data []byte) catalog.Product {
	t.Helper()
	var p catalog.Product
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func TestServerInitialization(t *testing.T) {
	done := make(chan struct{})
	var srv *Server
	var newErr error

	go func() {
		srv, newErr = New(context.Background(), newMockApplication(t), testConfig())
		close(done)
	}()

	select {
	case <-done:
		require.NoError(t, newErr)
		require.NotNil(t, srv)
	case <-time.After(5 * time.Second):
		t.Fatal("server.New() did not complete within 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestServerNewPropagatesCatalogError(t *testing.T) {
	app := newMockApplication(t)
	app.CatalogFunc = func(context.Context) (*catalog.Service, error) {
		return nil, errors.NewConfigError("store", "unsupported database url", nil)
	}

	_, err := New(context.Background(), app, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database url")
}

func TestServerNewRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 10
	cfg.RedisURL = "not-a-redis-url"

	_, err := New(context.Background(), newMockApplication(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestServerNewRejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 10
	cfg.TrustedProxies = []string{"proxy.internal"}

	_, err := New(context.Background(), newMockApplication(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trusted proxies")
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"/":         "",
		"api":       "/api",
		"/api/":     "/api",
		" /v1/api ": "/v1/api",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePrefix(in), "prefix %q", in)
	}
}

func TestServer_ProductLifecycle(t *testing.T) {
	_, ts := newTestServer(t, newMockApplication(t), testConfig())
	base := ts.URL + "/api/products"

	// First read seeds the empty catalog.
	resp, body := do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []catalog.Product
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 3)
	assert.Equal(t, "Milk 1L", listed[0].Name)

	resp, body = do(t, http.MethodPost, base, `{"name":"Juice","sku":"JUICE-1","category":"Beverage"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeProduct(t, body)
	assert.Equal(t, int64(4), created.ID)
	assert.Equal(t, "/api/products/4", resp.Header.Get("Location"))

	resp, body = do(t, http.MethodGet, base+"/4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decodeProduct(t, body))

	resp, body = do(t, http.MethodPut, base+"/4", `{"id":99,"name":"Orange Juice","sku":"JUICE-1","category":"Beverage"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeProduct(t, body)
	assert.Equal(t, int64(4), updated.ID, "path id wins over body id")
	assert.Equal(t, "Orange Juice", updated.Name)

	resp, _ = do(t, http.MethodDelete, base+"/4", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/4", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Product not found with id 4"}`, string(body))
}

func TestServer_ErrorResponses(t *testing.T) {
	_, ts := newTestServer(t, newMockApplication(t), testConfig())
	base := ts.URL + "/api/products"

	tests := []struct {
		name   string
		method string
		url    string
		body   string
		status int
		want   string
	}{
		{
			name:   "blank name",
			method: http.MethodPost,
			url:    base,
			body:   `{"name":"  ","sku":"S-1","category":"Misc"}`,
			status: http.StatusBadRequest,
			want:   `{"name":"Name is required"}`,
		},
		{
			name:   "every field blank",
			method: http.MethodPost,
			url:    base,
			body:   `{}`,
			status: http.StatusBadRequest,
			want:   `{"name":"Name is required","sku":"SKU is required","category":"Category is required"}`,
		},
		{
			name:   "malformed json",
			method: http.MethodPost,
			url:    base,
			body:   `{"name":`,
			status: http.StatusBadRequest,
			want:   `{"error":"Invalid JSON body"}`,
		},
		{
			name:   "non-integer id",
			method: http.MethodGet,
			url:    base + "/abc",
			status: http.StatusBadRequest,
			want:   `{"error":"Invalid product id"}`,
		},
		{
			name:   "update missing product",
			method: http.MethodPut,
			url:    base + "/42",
			body:   `{"name":"X","sku":"X","category":"X"}`,
			status: http.StatusNotFound,
			want:   `{"error":"Product not found with id 42"}`,
		},
		{
			name:   "delete missing product",
			method: http.MethodDelete,
			url:    base + "/999",
			status: http.StatusNotFound,
			want:   `{"error":"Product not found with id 999"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, tt.url, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestServer_IdempotentCreate(t *testing.T) {
	srv, ts := newTestServer(t, newMockApplication(t), testConfig())
	base := ts.URL + "/api/products"
	payload := `{"name":"Juice","sku":"JUICE-1","category":"Beverage"}`

	resp, body := do(t, http.MethodPost, base, payload, idempotency.Header, "key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeProduct(t, body)

	resp, body = do(t, http.MethodPost, base, payload, idempotency.Header, "key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, first, decodeProduct(t, body))
	assert.Equal(t, "/api/products/"+strconv.FormatInt(first.ID, 10), resp.Header.Get("Location"))

	resp, _ = do(t, http.MethodPost, base, `{"name":"Other","sku":"O-1","category":"Misc"}`, idempotency.Header, "key-1")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	_, body = do(t, http.MethodGet, base, "")
	var listed []catalog.Product
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed, 1, "replay must not create a second product")
	assert.Equal(t, 1, srv.Idempotency().ItemCount())
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, newMockApplication(t), testConfig())

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","service":"retailchain","version":"dev"}`, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/ready", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "ready", ready["status"])
}

func TestServer_ReadyReportsStoreFailure(t *testing.T) {
	app := newMockApplication(t)
	app.ReadyFunc = func(context.Context) error { return errors.New("connection refused") }
	_, ts := newTestServer(t, app, testConfig())

	resp, body := do(t, http.MethodGet, ts.URL+"/api/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"unavailable","error":"store unreachable"}`, string(body))
}

func TestServer_AuthProtectsProducts(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnabled = true
	cfg.APIKey = "secret"
	_, ts := newTestServer(t, newMockApplication(t), cfg)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/products", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/products", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	_, ts := newTestServer(t, newMockApplication(t), cfg)

	for range 2 {
		resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_RateLimitBehindTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1
	cfg.TrustedProxies = []string{"127.0.0.1", "::1"}
	_, ts := newTestServer(t, newMockApplication(t), cfg)

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", "", "X-Forwarded-For", "203.0.113.10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/health", "", "X-Forwarded-For", "203.0.113.11")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/health", "", "X-Forwarded-For", "203.0.113.10")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, newMockApplication(t), testConfig())

	resp, _ := do(t, http.MethodOptions, ts.URL+"/api/products", "",
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_WebSocketReceivesChanges(t *testing.T) {
	app := newMockApplication(t)
	srv, ts := newTestServer(t, app, testConfig())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.WSHub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/products", `{"name":"Juice","sku":"JUICE-1","category":"Beverage"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "CREATE", raw["type"])
	assert.Equal(t, "Juice", raw["product"].(map[string]any)["name"])
}

func TestServer_WebSocketRejectsForeignOrigin(t *testing.T) {
	_, ts := newTestServer(t, newMockApplication(t), testConfig())

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_SSEReceivesChanges(t *testing.T) {
	srv, ts := newTestServer(t, newMockApplication(t), testConfig())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/updates/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()
	require.Eventually(t, func() bool { return srv.SSEBroadcaster().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	del, _ := do(t, http.MethodDelete, ts.URL+"/api/products/999", "")
	require.Equal(t, http.StatusNotFound, del.StatusCode)
	created, _ := do(t, http.MethodPost, ts.URL+"/api/products", `{"name":"Juice","sku":"JUICE-1","category":"Beverage"}`)
	require.Equal(t, http.StatusCreated, created.StatusCode)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before the change arrived")
			if line == "event: CREATE" {
				return
			}
			require.NotEqual(t, "event: DELETE", line, "failed delete must not publish")
		case <-deadline:
			t.Fatal("no CREATE event on the stream")
		}
	}
}
