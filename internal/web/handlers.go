package web

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/session"
	"github.com/onelife/onelife/internal/settings"
)

// maxBodyBytes bounds JSON request bodies other than imports.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the API and the pages.
type Handlers struct {
	opener   *db.Opener
	session  *session.Session
	cfg      *config.Config
	guard    *ops.ClearGuard
	renderer *Renderer
	logger   *slog.Logger
	now      func() time.Time
}

func (h *Handlers) db(r *http.Request) (*sql.DB, error) {
	return h.opener.Open(r.Context())
}

// HandleLive handles GET /health/live.
func (h *Handlers) HandleLive(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleReady handles GET /health/ready: the store must open and answer.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	database, err := h.db(r)
	if err == nil {
		err = database.PingContext(r.Context())
	}
	if err != nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": "store unavailable"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"completion": h.session.Available(),
	})
}

// MessageRequest is the body of POST /api/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// HandleMessage handles POST /api/messages: one chat turn.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	reply, err := h.session.Send(r.Context(), body.Message)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, reply)
}

// HandleListRecords handles GET /api/records.
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.List(r.Context(), database, ops.ListInput{
		Type:   r.URL.Query().Get("type"),
		Window: r.URL.Query().Get("window"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Now:    h.now(),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleGetRecord handles GET /api/records/{id}.
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.Get(r.Context(), database, ops.GetInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDeleteRecord handles DELETE /api/records/{id}.
func (h *Handlers) HandleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.Delete(r.Context(), database, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleReport handles GET /api/report?q=&type=&window=.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	result, err := h.report(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

func (h *Handlers) report(r *http.Request) (*ops.ReportOutput, error) {
	database, err := h.db(r)
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()
	return ops.Report(r.Context(), database, ops.ReportInput{
		Query:  q.Get("q"),
		Type:   q.Get("type"),
		Window: q.Get("window"),
		Force:  true,
		Limit:  parseIntParam(r, "limit", h.cfg.ReportLimit),
		Now:    h.now(),
	})
}

// HandleExport handles GET /api/export: the backup document as a download.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	now := h.now()
	doc, err := ops.ExportDocument(r.Context(), database, now)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ops.DefaultBackupName(now)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(data, '\n'))
}

// HandleImport handles POST /api/import: the body is a backup document.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ops.MaxImportBytes))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewFormat("backup document too large or unreadable"))
		return
	}
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.ImportDocument(r.Context(), database, data, h.now())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// ClearRequest is the body of POST /api/clear.
type ClearRequest struct {
	Token string `json:"token,omitempty"`
}

// HandleClear handles POST /api/clear. An empty body starts the two-step
// confirmation; each later call presents the token from the previous one.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	var body ClearRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := h.guard.Advance(r.Context(), database, body.Token)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Pending != nil {
		status = http.StatusAccepted
	}
	renderJSON(w, status, result)
}

// HandleGetSettings handles GET /api/settings. The API key is always masked.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetSettings(h.session.Prefs(), false)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleUpdateSettings handles PUT /api/settings with a partial settings object.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.UpdateSettings(h.session.Prefs(), patch)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleResetSettings handles DELETE /api/settings.
func (h *Handlers) HandleResetSettings(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ResetSettings(h.session.Prefs())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleTestSettings handles POST /api/settings/test: a connection check
// against the completion endpoint.
func (h *Handlers) HandleTestSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Check(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"available": true})
}

// HandleRecordsPage handles GET /records: the records view with type tabs.
func (h *Handlers) HandleRecordsPage(w http.ResponseWriter, r *http.Request) {
	typeParam := r.URL.Query().Get("type")
	active, err := ops.ParseTypeFilter(typeParam)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	database, err := h.db(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.List(r.Context(), database, ops.ListInput{
		Type:   typeParam,
		Window: r.URL.Query().Get("window"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Now:    h.now(),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "records", RecordsPageData{
		PageData: PageData{
			Title:   "Records",
			Version: h.renderer.version,
			Nav:     "records",
		},
		Tabs:    tabs(active),
		Window:  string(result.Window),
		Records: result.Records,
		Total:   result.Total,
		HasMore: result.HasMore,
	})
}

// HandleReportPage handles GET /report: the rendered summary.
func (h *Handlers) HandleReportPage(w http.ResponseWriter, r *http.Request) {
	result, err := h.report(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	h.renderer.renderPage(w, "report", ReportPageData{
		PageData: PageData{
			Title:   result.Report.Title(),
			Version: h.renderer.version,
			Nav:     "report",
		},
		Query:        q.Get("q"),
		Type:         q.Get("type"),
		Window:       q.Get("window"),
		Report:       result.Report,
		RenderedHTML: h.renderer.renderMarkdown(result.Markdown),
	})
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// parseID parses the {id} path parameter.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest("record id must be a positive integer")
	}
	return id, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

