package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/undo"
)

// MoveInput contains parameters for the MoveFile operation.
type MoveInput struct {
	ConversationID string
	Source         string
	Destination    string
}

// MoveOutput contains the result of the MoveFile operation.
type MoveOutput struct {
	Message     string `json:"message"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// MoveFile renames Source to Destination and registers the move for undo.
// Destination must not exist.
func MoveFile(ctx context.Context, mgr *undo.Manager, cfg *config.Config, input MoveInput) (*MoveOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	if input.Source == "" {
		return nil, errors.NewInvalidRequest("source is required")
	}
	if input.Destination == "" {
		return nil, errors.NewInvalidRequest("destination is required")
	}

	source, err := ResolvePath(input.Source, cfg)
	if err != nil {
		return nil, err
	}
	destination, err := ResolvePath(input.Destination, cfg)
	if err != nil {
		return nil, err
	}

	ok, err := pathExists(source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewFileNotFoundMsg(input.Source, fmt.Sprintf("Source file not found: %s", input.Source))
	}
	ok, err = pathExists(destination)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, errors.NewConflict(fmt.Sprintf("Destination already exists: %s. Move skipped.", input.Destination))
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return nil, errors.NewIOFailure("Failed to create directory", err)
	}
	if err := os.Rename(source, destination); err != nil {
		return nil, errors.NewIOFailure("Failed to move file", err)
	}

	if err := mgr.RegisterMove(conv, source, destination); err != nil {
		return nil, err
	}

	return &MoveOutput{
		Message:     fmt.Sprintf("Successfully moved %s to %s", source, destination),
		Source:      source,
		Destination: destination,
	}, nil
}

// DeleteInput contains parameters for the DeleteFile operation.
type DeleteInput struct {
	ConversationID string
	Path           string
}

// DeleteOutput contains the result of the DeleteFile operation.
type DeleteOutput struct {
	Message      string `json:"message"`
	OriginalPath string `json:"original_path"`
	TrashPath    string `json:"trash_path"`
}

// DeleteFile moves a file or directory into the trash and registers the
// delete for undo. Nothing is erased.
func DeleteFile(ctx context.Context, mgr *undo.Manager, cfg *config.Config, input DeleteInput) (*DeleteOutput, error) {
	conv, err := requireConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	path, err := ResolvePath(input.Path, cfg)
	if err != nil {
		return nil, err
	}

	ok, err := pathExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewFileNotFound(input.Path)
	}

	trashPath, err := mgr.MoveToTrash(path)
	if err != nil {
		return nil, err
	}
	if err := mgr.RegisterDelete(conv, path, trashPath); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Message:      fmt.Sprintf("Successfully moved %s to trash (recoverable)", path),
		OriginalPath: path,
		TrashPath:    trashPath,
	}, nil
}
