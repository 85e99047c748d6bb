package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorHandler_ServesPageAtRoot(t *testing.T) {
	w := httptest.NewRecorder()
	MonitorHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "yar monitor")
	assert.Contains(t, w.Body.String(), "/api/monitor/send")
}

func TestMonitorHandler_UnknownPathsAreNotFound(t *testing.T) {
	h := MonitorHandler()

	for _, path := range []string{"/channels/general", "/missing.js", "/index.html"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
