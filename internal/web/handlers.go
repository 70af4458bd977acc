package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/ops"
	"github.com/kuse-dev/kuse/internal/undo"
)

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	mgr      *undo.Manager
	cfg      *config.Config
	journal  *journal.Journal
	logger   *slog.Logger
	version  string
	renderer *Renderer
}

// HandleList handles GET /conversations.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result := ops.ListConversations(r.Context(), h.mgr)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "conversations", ConversationsPageData{
		PageData: PageData{
			Title:   "Conversations",
			Version: h.version,
			Nav:     "conversations",
		},
		Conversations: result.Conversations,
		Capacity:      result.Capacity,
	})
}

// HandleDetail handles GET /conversations/{id}: the undoable actions of one
// conversation, newest first, plus what the next undo would do.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	history, err := ops.History(r.Context(), h.mgr, ops.HistoryInput{ConversationID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, history)
		return
	}

	preview, err := ops.Preview(r.Context(), h.mgr, ops.PreviewInput{ConversationID: id})
	if err != nil && !errors.Is(err, errors.ErrNothingToUndo) {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   history.ConversationID,
			Version: h.version,
			Nav:     "conversations",
		},
		ConversationID: history.ConversationID,
		Actions:        history.Actions,
		Preview:        preview,
		Message:        r.URL.Query().Get("message"),
	})
}

// HandleReport handles GET /conversations/{id}/report: a markdown summary of
// the history. ?format=md returns the markdown itself.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	history, err := ops.History(r.Context(), h.mgr, ops.HistoryInput{ConversationID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	preview, err := ops.Preview(r.Context(), h.mgr, ops.PreviewInput{ConversationID: id})
	if err != nil && !errors.Is(err, errors.ErrNothingToUndo) {
		h.renderer.renderError(w, r, err)
		return
	}

	md := buildReport(history, preview)

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(md))
		return
	}

	h.renderer.renderPage(w, "report", DetailPageData{
		PageData: PageData{
			Title:   "Report: " + history.ConversationID,
			Version: h.version,
			Nav:     "conversations",
		},
		ConversationID: history.ConversationID,
		RenderedHTML:   renderMarkdown(md),
	})
}

// HandleUndo handles POST /conversations/{id}/undo.
func (h *Handlers) HandleUndo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := ops.Undo(r.Context(), h.mgr, ops.UndoInput{ConversationID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	target := "/conversations/" + url.PathEscape(id) + "?message=" + url.QueryEscape(result.Message)
	if result.Remaining == 0 {
		target = "/conversations?message=" + url.QueryEscape(result.Message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleClear handles DELETE /conversations/{id} and the form fallback
// POST /conversations/{id}/clear.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := ops.Clear(r.Context(), h.mgr, ops.ClearInput{ConversationID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) || r.Method == http.MethodDelete {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/conversations", http.StatusSeeOther)
}

// HandleJournal handles GET /journal.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	conv := strings.TrimSpace(r.URL.Query().Get("conversation"))

	data := JournalPageData{
		PageData: PageData{
			Title:   "Journal",
			Version: h.version,
			Nav:     "journal",
		},
		ConversationID: conv,
		Enabled:        h.journal != nil,
	}

	if h.journal == nil {
		if wantsJSON(r) {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("journal is disabled"))
			return
		}
		h.renderer.renderPage(w, "journal", data)
		return
	}

	result, err := h.journal.List(r.Context(), journal.ListInput{
		ConversationID: conv,
		Limit:          parseIntParam(r, "limit", journal.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Events = result.Events
	data.Limit = result.Limit
	data.Offset = result.Offset
	data.HasMore = result.HasMore
	data.Total = result.Total
	h.renderer.renderPage(w, "journal", data)
}

// buildReport renders a conversation's history as markdown.
func buildReport(history *ops.HistoryOutput, preview *undo.Preview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation `%s`\n\n", history.ConversationID)
	fmt.Fprintf(&b, "%d of %d undo slots used.\n\n", len(history.Actions), history.Capacity)

	if len(history.Actions) == 0 {
		b.WriteString("Nothing to undo.\n")
		return b.String()
	}

	b.WriteString("| # | Kind | Time (UTC) | Restores | From |\n")
	b.WriteString("|---|------|------------|----------|------|\n")
	for i, e := range history.Actions {
		fmt.Fprintf(&b, "| %d | %s | %s | `%s` | `%s` |\n",
			i+1, kindLabel(e.Kind), formatTime(e.Timestamp), cell(e.Path), cell(e.Source))
	}

	if preview != nil {
		b.WriteString("\n## Next undo\n\n")
		b.WriteString(preview.Description + "\n")
		if !preview.Ready {
			fmt.Fprintf(&b, "\n**Will fail:** %s\n", preview.Problem)
		}
		if preview.Diff != "" {
			b.WriteString("\n```diff\n")
			b.WriteString(preview.Diff)
			if !strings.HasSuffix(preview.Diff, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n")
			if preview.DiffTruncated {
				b.WriteString("\n_Diff truncated._\n")
			}
		}
		if preview.DiffUnavailable != "" {
			fmt.Fprintf(&b, "\n_No diff: %s_\n", preview.DiffUnavailable)
		}
	}
	return b.String()
}

// cell keeps a value from breaking out of a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "`", "'")
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
