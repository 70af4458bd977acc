package undo

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kuse-dev/kuse/internal/errors"
)

// maxCollisionSuffix bounds the search for a free backup or trash name.
const maxCollisionSuffix = 1000

// stateRoot resolves stateDir. A relative stateDir is joined with the working
// directory at call time, so a chdir between record and undo changes the
// location that is consulted.
func stateRoot(stateDir string) (string, error) {
	if filepath.IsAbs(stateDir) {
		return stateDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.NewIOFailure("resolve working directory", err)
	}
	return filepath.Join(cwd, stateDir), nil
}

// fileName returns the final path element, or an InvalidRequest error when
// there is none.
func fileName(path string) (string, error) {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("Invalid file name: %q", path))
	}
	return name, nil
}

// ValidateConversationID rejects ids that cannot name a backup directory.
func ValidateConversationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewInvalidRequest("conversation_id is required")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return errors.NewInvalidRequest(fmt.Sprintf("conversation_id %q must not contain path separators", id))
	}
	return nil
}

// backupStore writes pristine copies under <state>/backups/<conversation>/<ts>/<name>.
type backupStore struct {
	stateDir string
}

// copyIn copies src into a fresh backup slot and returns its path. The slot
// is created with O_EXCL, so two snapshots never share a path.
func (s backupStore) copyIn(conversationID, src string, ts int64, info fs.FileInfo) (string, error) {
	name, err := fileName(src)
	if err != nil {
		return "", err
	}
	root, err := stateRoot(s.stateDir)
	if err != nil {
		return "", err
	}
	base := filepath.Join(root, "backups", conversationID)

	for n := 0; n < maxCollisionSuffix; n++ {
		stamp := strconv.FormatInt(ts, 10)
		if n > 0 {
			stamp = fmt.Sprintf("%d_%d", ts, n)
		}
		dir := filepath.Join(base, stamp)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.NewIOFailure("create backup directory", err)
		}

		dst := filepath.Join(dir, name)
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()|0o200)
		if stderrors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", errors.NewIOFailure("create backup file", err)
		}
		if err := copyTo(out, src); err != nil {
			_ = os.Remove(dst)
			return "", errors.NewIOFailure("copy file to backup", err)
		}
		return dst, nil
	}
	return "", errors.NewIOFailure("allocate backup path", fmt.Errorf("no free slot for %s at %d", name, ts))
}

// list returns the backups kept for a conversation, or for all conversations
// when conversationID is empty.
func (s backupStore) list(conversationID string) ([]StoredFile, error) {
	root, err := stateRoot(s.stateDir)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "backups")
	if conversationID != "" {
		dir = filepath.Join(dir, conversationID)
	}
	return walkFiles(dir)
}

// trashStore holds relocated deletions flat under <state>/trash/<ts>_<name>.
// mu covers choosing a free slot and renaming into it; rename replaces an
// existing file, so the check and the rename must not interleave.
type trashStore struct {
	stateDir string
	mu       sync.Mutex
}

// moveIn relocates path into the trash and returns the new location.
// Directories are moved whole.
func (s *trashStore) moveIn(path string, ts int64) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewFileNotFound(path)
		}
		return "", errors.NewIOFailure("read metadata", err)
	}
	name, err := fileName(path)
	if err != nil {
		return "", err
	}
	root, err := stateRoot(s.stateDir)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, "trash")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIOFailure("create trash directory", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 0; n < maxCollisionSuffix; n++ {
		trashName := fmt.Sprintf("%d_%s", ts, name)
		if n > 0 {
			trashName = fmt.Sprintf("%d_%d_%s", ts, n, name)
		}
		dst := filepath.Join(dir, trashName)
		if _, err := os.Lstat(dst); err == nil {
			continue
		} else if !stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewIOFailure("read metadata", err)
		}
		if err := os.Rename(path, dst); err != nil {
			return "", errors.NewIOFailure("Failed to move to trash", err)
		}
		return dst, nil
	}
	return "", errors.NewIOFailure("allocate trash path", fmt.Errorf("no free slot for %s at %d", name, ts))
}

func (s *trashStore) list() ([]StoredFile, error) {
	root, err := stateRoot(s.stateDir)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "trash")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return []StoredFile{}, nil
		}
		return nil, errors.NewIOFailure("read trash directory", err)
	}

	out := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, StoredFile{
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			IsDir:   e.IsDir(),
		})
	}
	return out, nil
}

// StoredFile describes a backup or trash entry on disk.
type StoredFile struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"`
	IsDir   bool   `json:"is_dir,omitempty"`
}

func walkFiles(dir string) ([]StoredFile, error) {
	out := []StoredFile{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, StoredFile{Path: path, Size: info.Size(), ModTime: info.ModTime().Unix()})
		return nil
	})
	if err != nil {
		return nil, errors.NewIOFailure("read backup directory", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// copyTo copies src into out and closes out.
func copyTo(out *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		out.Close()
		return err
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyFile overwrites dst with the bytes of src, creating it if needed.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	return copyTo(out, src)
}
