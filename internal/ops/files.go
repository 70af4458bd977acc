package ops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/logging"
	"github.com/kuse-dev/kuse/internal/undo"
)

// ReadInput contains parameters for the ReadFile operation.
type ReadInput struct {
	Path string
}

// ReadOutput contains the result of the ReadFile operation.
type ReadOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
	Lines   int    `json:"lines"`
}

// ReadFile returns a text file's content. It records nothing.
func ReadFile(ctx context.Context, cfg *config.Config, input ReadInput) (*ReadOutput, error) {
	path, err := ResolvePath(input.Path, cfg)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(input.Path)
		}
		return nil, errors.NewIOFailure("Failed to read file", err)
	}
	if info.IsDir() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("path is a directory: %s", input.Path))
	}
	if info.Size() > MaxReadBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("file is too large to read (%d bytes, max %d)", info.Size(), MaxReadBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOFailure("Failed to read file", err)
	}
	if !utf8.Valid(data) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("file is not valid UTF-8 text: %s", input.Path))
	}

	content := string(data)
	return &ReadOutput{
		Path:    path,
		Content: content,
		Size:    info.Size(),
		Lines:   countLines(content),
	}, nil
}

// WriteInput contains parameters for the WriteFile operation.
type WriteInput struct {
	ConversationID string
	Path           string
	Content        string
}

// WriteOutput contains the result of the WriteFile operation.
type WriteOutput struct {
	Message    string `json:"message"`
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	Created    bool   `json:"created"`
	Undoable   bool   `json:"undoable"`
	BackupPath string `json:"backup_path,omitempty"`
}

// WriteFile replaces a file's content, snapshotting the old content first.
// A failed snapshot does not block the write.
func WriteFile(ctx context.Context, mgr *undo.Manager, cfg *config.Config, logger *slog.Logger, input WriteInput) (*WriteOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	path, err := ResolvePath(input.Path, cfg)
	if err != nil {
		return nil, err
	}

	existed, err := pathExists(path)
	if err != nil {
		return nil, err
	}

	backup := snapshot(mgr, logger, conv, path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewIOFailure("Failed to create directory", err)
	}
	if err := os.WriteFile(path, []byte(input.Content), 0644); err != nil {
		return nil, errors.NewIOFailure("Failed to write file", err)
	}

	return &WriteOutput{
		Message:    fmt.Sprintf("Successfully wrote %d bytes to %s", len(input.Content), path),
		Path:       path,
		Bytes:      len(input.Content),
		Created:    !existed,
		Undoable:   backup != "",
		BackupPath: backup,
	}, nil
}

// EditInput contains parameters for the EditFile operation.
type EditInput struct {
	ConversationID string
	Path           string
	OldString      string
	NewString      string
	ReplaceAll     bool
}

// EditOutput contains the result of the EditFile operation.
type EditOutput struct {
	Message      string `json:"message"`
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
	Undoable     bool   `json:"undoable"`
	BackupPath   string `json:"backup_path,omitempty"`
}

// EditFile replaces exact occurrences of OldString. Without ReplaceAll the
// match must be unique.
func EditFile(ctx context.Context, mgr *undo.Manager, cfg *config.Config, logger *slog.Logger, input EditInput) (*EditOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	if input.OldString == "" {
		return nil, errors.NewInvalidRequest("old_string is required")
	}
	if input.OldString == input.NewString {
		return nil, errors.NewInvalidRequest("old_string and new_string must differ")
	}

	read, err := ReadFile(ctx, cfg, ReadInput{Path: input.Path})
	if err != nil {
		return nil, err
	}

	count := strings.Count(read.Content, input.OldString)
	switch {
	case count == 0:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("old_string not found in %s", input.Path))
	case count > 1 && !input.ReplaceAll:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("old_string matches %d times in %s; provide more context or set replace_all", count, input.Path))
	}

	var updated string
	if input.ReplaceAll {
		updated = strings.ReplaceAll(read.Content, input.OldString, input.NewString)
	} else {
		updated = strings.Replace(read.Content, input.OldString, input.NewString, 1)
	}

	backup := snapshot(mgr, logger, conv, read.Path)

	if err := os.WriteFile(read.Path, []byte(updated), 0644); err != nil {
		return nil, errors.NewIOFailure("Failed to write file", err)
	}

	return &EditOutput{
		Message:      fmt.Sprintf("Successfully edited %s (%d replacement(s))", read.Path, count),
		Path:         read.Path,
		Replacements: count,
		Undoable:     backup != "",
		BackupPath:   backup,
	}, nil
}

// snapshot backs up path on a best-effort basis.
func snapshot(mgr *undo.Manager, logger *slog.Logger, conv, path string) string {
	if logger == nil {
		logger = logging.Nop()
	}
	backup, err := mgr.Snapshot(conv, path)
	if err != nil {
		logger.Warn("ops.snapshot_failed", "conversation_id", conv, "path", path, "error", err)
		return ""
	}
	return backup
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
