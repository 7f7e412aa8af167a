package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/settings"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	opener *db.Opener
	prefs  *settings.Prefs
	cfg    *config.Config
	guard  *ops.ClearGuard
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(opener *db.Opener, prefs *settings.Prefs, cfg *config.Config) *Handlers {
	return &Handlers{
		opener: opener,
		prefs:  prefs,
		cfg:    cfg,
		guard:  ops.NewClearGuard(ops.DefaultClearTTL),
		now:    time.Now,
	}
}

func (h *Handlers) db(ctx context.Context) (*sql.DB, error) {
	return h.opener.Open(ctx)
}

// Request types for each tool

// LogRequest represents the arguments for life_log.
type LogRequest struct {
	Message string `json:"message"`
}

// Validate implements validation.Validatable.
func (r *LogRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Message, validation.Required),
	)
}

// ListRequest represents the arguments for life_list.
type ListRequest struct {
	Type   string `json:"type,omitempty"`
	Window string `json:"window,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// IDRequest represents the arguments for life_get and life_delete.
type IDRequest struct {
	ID int64 `json:"id"`
}

// Validate implements validation.Validatable.
func (r *IDRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, validation.Min(int64(1))),
	)
}

// ReportRequest represents the arguments for life_report.
type ReportRequest struct {
	Query  string `json:"query,omitempty"`
	Type   string `json:"type,omitempty"`
	Window string `json:"window,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// PathRequest represents the arguments for life_export and life_import.
type PathRequest struct {
	Path string `json:"path,omitempty"`
}

// ClearRequest represents the arguments for life_clear.
type ClearRequest struct {
	Token string `json:"token,omitempty"`
}

// SettingsGetRequest represents the arguments for settings_get.
type SettingsGetRequest struct {
	Reveal bool `json:"reveal,omitempty"`
}

// SettingsSetRequest represents the arguments for settings_set.
type SettingsSetRequest struct {
	EndpointURL   *string  `json:"endpoint_url,omitempty"`
	Model         *string  `json:"model,omitempty"`
	APIKey        *string  `json:"api_key,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Encryption    *bool    `json:"encryption,omitempty"`
	Notifications *bool    `json:"notifications,omitempty"`
	Reset         bool     `json:"reset,omitempty"`
}

// Handler implementations

// HandleLog handles the life_log tool call.
func (h *Handlers) HandleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Log(ctx, database, ops.LogInput{Message: input.Message, Now: h.now()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the life_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, database, ops.ListInput{
		Type:   input.Type,
		Window: input.Window,
		Limit:  input.Limit,
		Now:    h.now(),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the life_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Get(ctx, database, ops.GetInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the life_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Delete(ctx, database, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReport handles the life_report tool call. Calling the tool is an
// explicit request, so the query need not read as a summary request.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = h.cfg.ReportLimit
	}
	result, err := ops.Report(ctx, database, ops.ReportInput{
		Query:  input.Query,
		Type:   input.Type,
		Window: input.Window,
		Force:  true,
		Limit:  limit,
		Now:    h.now(),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the life_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, database, h.cfg, ops.ExportInput{Path: input.Path, Now: h.now()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the life_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, database, h.cfg, ops.ImportInput{Path: input.Path, Now: h.now()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClear handles the life_clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	database, err := h.db(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.guard.Advance(ctx, database, input.Token)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetSettings(h.prefs, input.Reveal)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSettingsSet handles the settings_set tool call.
func (h *Handlers) HandleSettingsSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var result *ops.SettingsOutput
	if input.Reset {
		result, err = ops.ResetSettings(h.prefs)
	} else {
		result, err = ops.UpdateSettings(h.prefs, settings.Patch{
			EndpointURL:   input.EndpointURL,
			Model:         input.Model,
			APIKey:        input.APIKey,
			Temperature:   input.Temperature,
			MaxTokens:     input.MaxTokens,
			Encryption:    input.Encryption,
			Notifications: input.Notifications,
		})
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if appErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"status":  appErr.Status,
		}
		// Details may carry file paths or SQL errors
		if appErr.Code != errors.ErrInternal && appErr.Code != errors.ErrStorage && appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
