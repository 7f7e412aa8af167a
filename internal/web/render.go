package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/report"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "records", "report"
}

// Tab is one type filter on the records page.
type Tab struct {
	Name   string
	Label  string
	Active bool
}

// RecordsPageData is the template data for the records page.
type RecordsPageData struct {
	PageData
	Tabs    []Tab
	Window  string
	Records []record.Record
	Total   int
	HasMore bool
}

// ReportPageData is the template data for the report page.
type ReportPageData struct {
	PageData
	Query        string
	Type         string
	Window       string
	Report       *report.Report
	RenderedHTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	markdown  goldmark.Markdown
	logger    *slog.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *slog.Logger) *Renderer {
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"line":       report.Line,
		"typeLabel":  func(t record.Type) string { return t.Label() },
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"records": "records.html",
		"report":  "report.html",
		"error":   "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation: API routes
// and clients that accept JSON get a JSON body, browsers get an error page.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewInternal(err)
	}

	status := appErr.Status
	message := appErr.Message
	if appErr.Code == errors.ErrInternal || appErr.Code == errors.ErrStorage {
		r.logger.Error("request failed", "path", req.URL.Path, "code", appErr.Code, "error", err)
	}
	if appErr.Code == errors.ErrInternal {
		message = "an internal error occurred"
	}

	if strings.HasPrefix(req.URL.Path, "/api/") || strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(appErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML. Raw HTML in the source is
// not passed through.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatDate formats a record date in local time.
func formatDate(t time.Time) string {
	return t.Local().Format("Jan 2, 2006 15:04")
}

// tabs returns the records page tabs with active marked.
func tabs(active *record.Type) []Tab {
	out := []Tab{{Name: "all", Label: "All", Active: active == nil}}
	for _, t := range record.Types {
		out = append(out, Tab{Name: string(t), Label: t.Label(), Active: active != nil && *active == t})
	}
	return out
}
