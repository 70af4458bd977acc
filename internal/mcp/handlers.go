package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/logging"
	"github.com/kuse-dev/kuse/internal/ops"
	"github.com/kuse-dev/kuse/internal/undo"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	mgr     *undo.Manager
	cfg     *config.Config
	journal *journal.Journal
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance. j may be nil when the journal
// is disabled.
func NewHandlers(mgr *undo.Manager, cfg *config.Config, j *journal.Journal, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{mgr: mgr, cfg: cfg, journal: j, logger: logger}
}

// Request types for each tool

// ReadRequest represents the arguments for file_read.
type ReadRequest struct {
	Path string `json:"path"`
}

// WriteRequest represents the arguments for file_write.
type WriteRequest struct {
	Path           string `json:"path"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// EditRequest represents the arguments for file_edit.
type EditRequest struct {
	Path           string `json:"path"`
	OldString      string `json:"old_string"`
	NewString      string `json:"new_string"`
	ReplaceAll     bool   `json:"replace_all,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MoveRequest represents the arguments for file_move.
type MoveRequest struct {
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// DeleteRequest represents the arguments for file_delete.
type DeleteRequest struct {
	Path           string `json:"path"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationRequest represents the arguments for the undo_* tools.
type ConversationRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// JournalRequest represents the arguments for journal_list.
type JournalRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// Handler implementations

// HandleRead handles the file_read tool call.
func (h *Handlers) HandleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReadFile(ctx, h.cfg, ops.ReadInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleWrite handles the file_write tool call.
func (h *Handlers) HandleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.WriteFile(ctx, h.mgr, h.cfg, h.logger, ops.WriteInput{
		ConversationID: conversationID(ctx, input.ConversationID),
		Path:           input.Path,
		Content:        input.Content,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEdit handles the file_edit tool call.
func (h *Handlers) HandleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EditRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.EditFile(ctx, h.mgr, h.cfg, h.logger, ops.EditInput{
		ConversationID: conversationID(ctx, input.ConversationID),
		Path:           input.Path,
		OldString:      input.OldString,
		NewString:      input.NewString,
		ReplaceAll:     input.ReplaceAll,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMove handles the file_move tool call.
func (h *Handlers) HandleMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.MoveFile(ctx, h.mgr, h.cfg, ops.MoveInput{
		ConversationID: conversationID(ctx, input.ConversationID),
		Source:         input.Source,
		Destination:    input.Destination,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the file_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteFile(ctx, h.mgr, h.cfg, ops.DeleteInput{
		ConversationID: conversationID(ctx, input.ConversationID),
		Path:           input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleUndo handles the undo_last tool call.
func (h *Handlers) HandleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Undo(ctx, h.mgr, ops.UndoInput{
		ConversationID: conversationID(ctx, input.ConversationID),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePreview handles the undo_preview tool call.
func (h *Handlers) HandlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Preview(ctx, h.mgr, ops.PreviewInput{
		ConversationID: conversationID(ctx, input.ConversationID),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistory handles the undo_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.mgr, ops.HistoryInput{
		ConversationID: conversationID(ctx, input.ConversationID),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleClear handles the undo_clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Clear(ctx, h.mgr, ops.ClearInput{
		ConversationID: conversationID(ctx, input.ConversationID),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournal handles the journal_list tool call.
func (h *Handlers) HandleJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.journal == nil {
		return errorResult(errors.NewInvalidRequest("journal is disabled")), nil
	}

	result, err := h.journal.List(ctx, journal.ListInput{
		ConversationID: strings.TrimSpace(input.ConversationID),
		Limit:          input.Limit,
		Offset:         input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// conversationID prefers the explicit argument and falls back to the MCP
// client session, so one session maps to one undo stack.
func conversationID(ctx context.Context, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// Helper functions

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var kErr *errors.KuseError
	if stderrors.As(err, &kErr) && kErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    kErr.Code,
			"message": kErr.Message,
			"status":  kErr.Status,
		}
		if kErr.Details != nil {
			errorObj["details"] = kErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		// Internal errors may carry SQL text or paths; keep them out of results
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
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

// successResult creates an MCP success result with JSON data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
