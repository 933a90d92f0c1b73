package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

// Pages, each rendered inside layout.html
const (
	pageLoading = "loading.html"
	pageAuth    = "auth.html"
	pageHome    = "home.html"
	pageConfirm = "confirm.html"
)

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2 January 2006, 15:04")
	},
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(layoutTemplate).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), layoutTemplate, name)
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{pageLoading, pageAuth, pageHome, pageConfirm} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, err
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// renderPage executes into a buffer first so a template error still produces
// a clean 500 instead of half a page.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := s.pages[page]
	if !ok {
		logError(r, "unknown page "+page, nil)
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		logError(r, "failed to render "+page, err)
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Str("page", page).Msg("Client went away while writing page")
	}
}
