package mcp

import "github.com/mark3labs/mcp-go/mcp"

const conversationIDDesc = "Conversation whose undo history records this call. Defaults to the MCP session id."

var readToolDef = mcp.NewTool("file_read",
	mcp.WithDescription("Read a UTF-8 text file. Relative paths resolve against the project root."),
	mcp.WithString("path", mcp.Required(), mcp.Description("The path to the file to read")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var writeToolDef = mcp.NewTool("file_write",
	mcp.WithDescription("Write a file, replacing its content. The previous content is backed up first so the write can be undone with undo_last. Files of 100 MiB or more are written without a backup."),
	mcp.WithString("path", mcp.Required(), mcp.Description("The path to the file to write")),
	mcp.WithString("content", mcp.Required(), mcp.Description("The full new content of the file")),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
	mcp.WithDestructiveHintAnnotation(true),
)

var editToolDef = mcp.NewTool("file_edit",
	mcp.WithDescription("Replace an exact string in a file. old_string must match exactly once unless replace_all is set. Undoable with undo_last."),
	mcp.WithString("path", mcp.Required(), mcp.Description("The path to the file to edit")),
	mcp.WithString("old_string", mcp.Required(), mcp.Description("The exact text to replace")),
	mcp.WithString("new_string", mcp.Required(), mcp.Description("The replacement text")),
	mcp.WithBoolean("replace_all", mcp.Description("Replace every occurrence (default false)")),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
	mcp.WithDestructiveHintAnnotation(true),
)

var moveToolDef = mcp.NewTool("file_move",
	mcp.WithDescription("Move or rename a file safely. The destination must not exist. Supports instant undo."),
	mcp.WithString("source", mcp.Required(), mcp.Description("The path to the file to move")),
	mcp.WithString("destination", mcp.Required(), mcp.Description("The destination path (can be new folder or filename)")),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
)

var deleteToolDef = mcp.NewTool("file_delete",
	mcp.WithDescription("Safely delete a file or directory by moving it to the project trash. This is reversible."),
	mcp.WithString("path", mcp.Required(), mcp.Description("The path to the file or directory to delete")),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
)

var undoToolDef = mcp.NewTool("undo_last",
	mcp.WithDescription("Reverse the most recent write, edit, move or delete in this conversation. Only the last 10 actions are kept. An action is consumed even if reversing it fails."),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
)

var previewToolDef = mcp.NewTool("undo_preview",
	mcp.WithDescription("Describe what undo_last would do next without doing it. Content restores include a unified diff."),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyToolDef = mcp.NewTool("undo_history",
	mcp.WithDescription("List the undoable actions of a conversation, newest first."),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var clearToolDef = mcp.NewTool("undo_clear",
	mcp.WithDescription("Forget a conversation's undo history. Backups and trash stay on disk."),
	mcp.WithString("conversation_id", mcp.Description(conversationIDDesc)),
	mcp.WithDestructiveHintAnnotation(true),
)

var journalToolDef = mcp.NewTool("journal_list",
	mcp.WithDescription("List the persistent audit journal of recorded, evicted, undone and cleared actions, newest first."),
	mcp.WithString("conversation_id", mcp.Description("Only events for this conversation (default: all)")),
	mcp.WithNumber("limit", mcp.Description("Max events to return (default 50, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Events to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)
