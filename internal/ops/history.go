package ops

import (
	"context"

	"github.com/kuse-dev/kuse/internal/undo"
)

// UndoInput contains parameters for the Undo operation.
type UndoInput struct {
	ConversationID string
}

// UndoOutput contains the result of the Undo operation.
type UndoOutput struct {
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
}

// Undo reverses the conversation's newest action. The message or error from
// the reversal is returned as is.
func Undo(ctx context.Context, mgr *undo.Manager, input UndoInput) (*UndoOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	msg, err := mgr.UndoLast(conv)
	if err != nil {
		return nil, err
	}
	return &UndoOutput{
		Message:   msg,
		Remaining: mgr.Log().Len(conv),
	}, nil
}

// PreviewInput contains parameters for the Preview operation.
type PreviewInput struct {
	ConversationID string
}

// Preview describes the next undo without performing it.
func Preview(ctx context.Context, mgr *undo.Manager, input PreviewInput) (*undo.Preview, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	return mgr.PreviewLatest(conv)
}

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	ConversationID string
}

// HistoryOutput lists a conversation's undoable actions, newest first.
type HistoryOutput struct {
	ConversationID string       `json:"conversation_id"`
	Actions        []undo.Entry `json:"actions"`
	Capacity       int          `json:"capacity"`
}

// History returns the conversation's recorded actions.
func History(ctx context.Context, mgr *undo.Manager, input HistoryInput) (*HistoryOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	entries, err := mgr.History(conv)
	if err != nil {
		return nil, err
	}
	return &HistoryOutput{
		ConversationID: conv,
		Actions:        entries,
		Capacity:       mgr.Log().Capacity(),
	}, nil
}

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	ConversationID string
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Cleared        bool   `json:"cleared"`
	ConversationID string `json:"conversation_id"`
	Dropped        int    `json:"dropped"`
}

// Clear forgets a conversation's history on teardown. Backups and trash
// entries are left on disk.
func Clear(ctx context.Context, mgr *undo.Manager, input ClearInput) (*ClearOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	dropped := mgr.Clear(conv)
	return &ClearOutput{
		Cleared:        true,
		ConversationID: conv,
		Dropped:        dropped,
	}, nil
}

// ListConversationsOutput contains conversations with history.
type ListConversationsOutput struct {
	Conversations []undo.ConversationSummary `json:"conversations"`
	Capacity      int                        `json:"capacity"`
}

// ListConversations returns every conversation that has recorded history.
func ListConversations(ctx context.Context, mgr *undo.Manager) *ListConversationsOutput {
	return &ListConversationsOutput{
		Conversations: mgr.Conversations(),
		Capacity:      mgr.Log().Capacity(),
	}
}
