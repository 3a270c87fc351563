package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		config     CORSConfig
		origin     string
		method     string
		preflight  bool
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "default origin allowed",
			config:     DefaultCORSConfig(),
			origin:     DefaultCORSOrigin,
			method:     http.MethodGet,
			wantOrigin: DefaultCORSOrigin,
			wantStatus: http.StatusOK,
		},
		{
			name:       "other origin rejected",
			config:     DefaultCORSConfig(),
			origin:     "https://evil.example",
			method:     http.MethodGet,
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "allow all",
			config:     CORSConfig{AllowAll: true},
			origin:     "https://any.example",
			method:     http.MethodGet,
			wantOrigin: "*",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight short circuits",
			config:     DefaultCORSConfig(),
			origin:     DefaultCORSOrigin,
			method:     http.MethodOptions,
			preflight:  true,
			wantOrigin: DefaultCORSOrigin,
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/products", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()

			CORS(tt.config)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSExposesLocation(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/products", nil)
	req.Header.Set("Origin", DefaultCORSOrigin)

	CORS(DefaultCORSConfig())(http.NotFoundHandler()).ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Location")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
