package mcp

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/undo"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"file", "undo", "journal"}

const instructions = `Kuse gives you reversible file tools.
Prefer file_write, file_edit, file_move and file_delete over shell commands so every change can be undone.
file_delete moves to a trash directory; nothing is erased.
undo_last reverses the newest change of the conversation; undo_preview shows what it would do.
Only the 10 most recent changes per conversation can be undone.`

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"file_read": {
		def:     readToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRead },
	},
	"file_write": {
		def:     writeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWrite },
	},
	"file_edit": {
		def:     editToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEdit },
	},
	"file_move": {
		def:     moveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMove },
	},
	"file_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"undo_last": {
		def:     undoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUndo },
	},
	"undo_preview": {
		def:     previewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePreview },
	},
	"undo_history": {
		def:     historyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"undo_clear": {
		def:     clearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClear },
	},
	"journal_list": {
		def:     journalToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournal },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
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

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "file_write" → "file").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// EnabledTools returns the tool names NewServer registers for cfg, sorted.
// Journal tools are skipped unless journalEnabled.
func EnabledTools(cfg *config.Config, journalEnabled bool) []string {
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	if !journalEnabled {
		for _, tool := range ExpandTypesToTools([]string{"journal"}) {
			disabled[tool] = true
		}
	}

	names := make([]string, 0, len(toolRegistry))
	for _, name := range AllToolNames() {
		if !disabled[name] {
			names = append(names, name)
		}
	}
	return names
}

// NewServer creates a new MCP server with Kuse tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(mgr *undo.Manager, cfg *config.Config, j *journal.Journal, logger *slog.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"kuse",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	h := NewHandlers(mgr, cfg, j, logger)

	for _, name := range EnabledTools(cfg, j != nil) {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(mgr *undo.Manager, cfg *config.Config, j *journal.Journal, logger *slog.Logger, version string) error {
	s := NewServer(mgr, cfg, j, logger, version)
	return server.ServeStdio(s)
}
