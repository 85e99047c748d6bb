// Package web embeds the channel monitor page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var distFS embed.FS

// MonitorHandler serves the monitor page at "/" and any other embedded
// asset by path. Unknown paths get a 404. The page is never cached so a
// restarted server always hands out the current build.
func MonitorHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	index, err := fs.ReadFile(subFS, "index.html")
	if err != nil {
		panic("web: monitor page missing from build: " + err.Error())
	}
	assets := http.FileServer(http.FS(subFS))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(index)
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(subFS, r.URL.Path[1:]); err != nil || r.URL.Path == "/index.html" {
			http.NotFound(w, r)
			return
		}
		assets.ServeHTTP(w, r)
	})
	return mux
}
