package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

func FileServerHandler() http.Handler {
	return http.FileServer(http.FS(StaticFilesFS()))
}

func StaticFilesFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	files := http.StripPrefix(RouteStatic, s.fileServer)
	return func(w http.ResponseWriter, r *http.Request) {
		files.ServeHTTP(w, r)
	}
}
