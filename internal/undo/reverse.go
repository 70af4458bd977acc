package undo

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kuse-dev/kuse/internal/errors"
)

// reverse replays the inverse of a. Every Action variant has a case here;
// a new variant without one fails loudly instead of being skipped.
func reverse(a Action) (string, error) {
	switch a := a.(type) {
	case ContentRestore:
		return restoreContent(a)
	case MoveReverse:
		return reverseMove(a)
	case DeleteRestore:
		return restoreDeleted(a)
	default:
		return "", errors.NewInternal(fmt.Errorf("no reversal for action %T", a))
	}
}

func restoreContent(a ContentRestore) (string, error) {
	if _, err := os.Stat(a.BackupPath); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewFileNotFoundMsg(a.BackupPath, fmt.Sprintf("Backup file missing: %s", a.BackupPath))
		}
		return "", errors.NewIOFailure("read backup metadata", err)
	}
	if err := copyFile(a.BackupPath, a.TargetPath); err != nil {
		return "", errors.NewIOFailure("Failed to restore file", err)
	}
	return fmt.Sprintf("Restored content of %s", a.TargetPath), nil
}

func reverseMove(a MoveReverse) (string, error) {
	if _, err := os.Lstat(a.FromPath); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewFileNotFoundMsg(a.FromPath, fmt.Sprintf("File not found at %s. Cannot move back.", a.FromPath))
		}
		return "", errors.NewIOFailure("read metadata", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.ToPath), 0o755); err != nil {
		return "", errors.NewIOFailure("create parent directory", err)
	}
	if err := os.Rename(a.FromPath, a.ToPath); err != nil {
		return "", errors.NewIOFailure("Failed to move file back", err)
	}
	return fmt.Sprintf("Moved %s back to %s", a.FromPath, a.ToPath), nil
}

func restoreDeleted(a DeleteRestore) (string, error) {
	if _, err := os.Lstat(a.TrashPath); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewFileNotFoundMsg(a.TrashPath, fmt.Sprintf("Trash file missing: %s", a.TrashPath))
		}
		return "", errors.NewIOFailure("read metadata", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.OriginalPath), 0o755); err != nil {
		return "", errors.NewIOFailure("create parent directory", err)
	}
	if err := os.Rename(a.TrashPath, a.OriginalPath); err != nil {
		return "", errors.NewIOFailure("Failed to restore from trash", err)
	}
	return fmt.Sprintf("Restored %s from trash", a.OriginalPath), nil
}
