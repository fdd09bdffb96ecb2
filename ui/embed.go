//go:build ui_embed

// Package ui serves the command panel frontend.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// Build with: cd ui && pnpm build && go build -tags ui_embed .
//
//go:embed all:dist
var distFS embed.FS

// Handler serves the embedded panel. Unknown paths without an extension get
// index.html so client-side routes such as /commands/7 load the app.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && !isFile(fsys, name) && !strings.Contains(path.Base(name), ".") {
			r.URL.Path = "/"
		}
		files.ServeHTTP(w, r)
	}), nil
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
