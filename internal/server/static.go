package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// StaticHandler serves the overlay bundle: the embedded copy in
// production, the on-disk source dir in dev for iteration without
// rebuilding.
func StaticHandler(dev bool) http.Handler {
	if dev {
		return http.FileServer(http.Dir("internal/server/static"))
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
