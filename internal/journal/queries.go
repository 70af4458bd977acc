package journal

import (
	"context"
	"database/sql"

	"github.com/kuse-dev/kuse/internal/errors"
)

// Insert stores one event.
func Insert(ctx context.Context, db *sql.DB, e *Event) error {
	query := `
		INSERT INTO events (
			id, conversation_id, action_id, event, kind,
			path, source, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		e.ID, e.ConversationID, toNullString(e.ActionID), e.Event, toNullString(e.Kind),
		toNullString(e.Path), toNullString(e.Source), toNullString(e.Message), e.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Query returns a page of events and the total count, newest first.
// An empty conversationID matches every conversation.
func Query(ctx context.Context, db *sql.DB, conversationID string, limit, offset int) ([]Event, int, error) {
	where := ""
	args := []any{}
	if conversationID != "" {
		where = "WHERE conversation_id = ?"
		args = append(args, conversationID)
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, conversation_id, action_id, event, kind, path, source, message, created_at
		FROM events ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e                                      Event
			actionID, kind, path, source, message sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &actionID, &e.Event, &kind, &path, &source, &message, &e.CreatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		e.ActionID = actionID.String
		e.Kind = kind.String
		e.Path = path.String
		e.Source = source.String
		e.Message = message.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return events, total, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
