package mcp

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/settings"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"life_log": {
		def:     logToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLog },
	},
	"life_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"life_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"life_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"life_report": {
		def:     reportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReport },
	},
	"life_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"life_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"life_clear": {
		def:     clearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClear },
	},
	"settings_get": {
		def:     settingsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsGet },
	},
	"settings_set": {
		def:     settingsSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsSet },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the OneLife tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(opener *db.Opener, prefs *settings.Prefs, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"onelife",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(opener, prefs, cfg)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(opener *db.Opener, prefs *settings.Prefs, cfg *config.Config, version string) error {
	s := NewServer(opener, prefs, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
