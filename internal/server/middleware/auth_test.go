package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/retailchain/pkg/logging"
)

func TestAuth(t *testing.T) {
	config := DefaultAuthConfig()
	config.Enabled = true
	config.APIKey = "secret"

	handler := Auth(config, logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"missing key", "/api/products", nil, http.StatusUnauthorized},
		{"wrong key", "/api/products", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", "/api/products", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", "/api/products", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"raw authorization", "/api/products", map[string]string{"Authorization": "secret"}, http.StatusOK},
		{"public path", "/health", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	handler := Auth(DefaultAuthConfig(), logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/products/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthEmptyConfiguredKeyRejects(t *testing.T) {
	config := DefaultAuthConfig()
	config.Enabled = true

	handler := Auth(config, logging.NewNopLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("X-API-Key", "")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
