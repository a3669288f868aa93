package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// staticFileServer serves the client bundle. Paths that match no file fall
// back to index.html so client-side routes work, except for paths that look
// like assets, which get a plain 404.
func staticFileServer(assets fs.FS) http.Handler {
	fileServer := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if _, err := fs.Stat(assets, name); err != nil {
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			r.URL.Path = "/"
		}

		fileServer.ServeHTTP(w, r)
	})
}
