package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/logging"
	"github.com/kuse-dev/kuse/internal/undo"
)

// Event names stored in the events table.
const (
	EventRecorded   = "recorded"
	EventEvicted    = "evicted"
	EventUndone     = "undone"
	EventUndoFailed = "undo_failed"
	EventCleared    = "cleared"
)

// Pagination limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Event is one row of the audit journal.
type Event struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	ActionID       string `json:"action_id,omitempty"`
	Event          string `json:"event"`
	Kind           string `json:"kind,omitempty"`
	Path           string `json:"path,omitempty"`
	Source         string `json:"source,omitempty"`
	Message        string `json:"message,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// Journal persists undo history changes. It implements undo.Journal; write
// failures are logged and never reach the caller.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ undo.Journal = (*Journal)(nil)

// New wraps an open database.
func New(db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Journal{db: db, logger: logger, now: time.Now}
}

// Recorded implements undo.Journal.
func (j *Journal) Recorded(conversationID string, a undo.Action) {
	j.insertAction(conversationID, EventRecorded, a, "")
}

// Evicted implements undo.Journal.
func (j *Journal) Evicted(conversationID string, a undo.Action) {
	j.insertAction(conversationID, EventEvicted, a, "")
}

// Undone implements undo.Journal.
func (j *Journal) Undone(conversationID string, a undo.Action, message string, err error) {
	if err != nil {
		j.insertAction(conversationID, EventUndoFailed, a, err.Error())
		return
	}
	j.insertAction(conversationID, EventUndone, a, message)
}

// Cleared implements undo.Journal.
func (j *Journal) Cleared(conversationID string, dropped int) {
	j.insert(Event{
		ConversationID: conversationID,
		Event:          EventCleared,
		Message:        clearedMessage(dropped),
	})
}

func (j *Journal) insertAction(conversationID, event string, a undo.Action, message string) {
	e := undo.Describe(a)
	j.insert(Event{
		ConversationID: conversationID,
		ActionID:       e.ID,
		Event:          event,
		Kind:           string(e.Kind),
		Path:           e.Path,
		Source:         e.Source,
		Message:        message,
	})
}

func (j *Journal) insert(e Event) {
	e.ID = ulid.Make().String()
	e.CreatedAt = j.now().Unix()
	if err := Insert(context.Background(), j.db, &e); err != nil {
		j.logger.Warn("journal.insert_failed", "event", e.Event, "conversation_id", e.ConversationID, "error", err)
	}
}

// ListInput filters List.
type ListInput struct {
	ConversationID string
	Limit          int
	Offset         int
}

// ListOutput is a page of events, newest first.
type ListOutput struct {
	Events  []Event `json:"events"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"has_more"`
	Total   int     `json:"total"`
}

// List returns journal events, newest first.
func (j *Journal) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if input.Offset < 0 {
		return nil, errors.NewInvalidRequest("offset must not be negative")
	}

	events, total, err := Query(ctx, j.db, input.ConversationID, limit, input.Offset)
	if err != nil {
		return nil, err
	}
	return &ListOutput{
		Events:  events,
		Limit:   limit,
		Offset:  input.Offset,
		HasMore: input.Offset+len(events) < total,
		Total:   total,
	}, nil
}

func clearedMessage(dropped int) string {
	switch dropped {
	case 0:
		return "History cleared (was empty)"
	case 1:
		return "History cleared (1 action dropped)"
	default:
		return "History cleared (" + strconv.Itoa(dropped) + " actions dropped)"
	}
}
