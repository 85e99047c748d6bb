package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantOrigin  string
		wantHeaders string
		wantStatus  int
	}{
		{"wildcard echoes origin", []string{"*"}, "http://a.test", http.MethodGet, "http://a.test", "Content-Type, X-Yar-Session-ID", http.StatusTeapot},
		{"explicit match", []string{"http://a.test"}, "http://a.test", http.MethodGet, "http://a.test", "Content-Type, X-Yar-Session-ID", http.StatusTeapot},
		{"mismatch", []string{"http://a.test"}, "http://b.test", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"*"}, "http://a.test", http.MethodOptions, "http://a.test", "Content-Type, X-Yar-Session-ID", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/channels", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			CORS(tt.allowed, "X-Yar-Session-ID")(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantHeaders, w.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}
