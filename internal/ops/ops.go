package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/undo"
)

// MaxReadBytes is the largest file ReadFile will return.
const MaxReadBytes = 10 * 1024 * 1024

// ResolvePath makes path absolute. Relative paths are joined with
// cfg.ProjectRoot when set, else with the working directory.
func ResolvePath(path string, cfg *config.Config) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.NewInvalidRequest("path must not contain NUL bytes")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if cfg != nil && cfg.ProjectRoot != "" {
		return filepath.Join(cfg.ProjectRoot, path), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.NewIOFailure("Failed to get current directory", err)
	}
	return filepath.Join(cwd, path), nil
}

// requireConversation trims and checks the conversation id.
func requireConversation(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := undo.ValidateConversationID(id); err != nil {
		return "", err
	}
	return id, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.NewIOFailure(fmt.Sprintf("Failed to read metadata of %s", path), err)
}
