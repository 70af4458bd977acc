package undo

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/diff"
	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/logging"
)

// previewMaxBytes is the largest file a preview will read to build a diff.
const previewMaxBytes = 1 << 20

// Journal observes history changes. Implementations must not block for long;
// they are called synchronously after the history lock is released.
type Journal interface {
	Recorded(conversationID string, a Action)
	Evicted(conversationID string, a Action)
	Undone(conversationID string, a Action, message string, err error)
	Cleared(conversationID string, dropped int)
}

// Manager owns the action log and the backup and trash stores. Create one per
// process and share the pointer with whatever issues tool calls.
type Manager struct {
	log            *Log
	backups        backupStore
	trash          *trashStore
	maxBackupBytes int64
	journal        Journal
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal attaches an audit journal.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager from cfg. A nil cfg uses config.DefaultConfig.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = config.DefaultStateDir
	}
	m := &Manager{
		log:            NewLog(cfg.HistoryCap),
		backups:        backupStore{stateDir: stateDir},
		trash:          &trashStore{stateDir: stateDir},
		maxBackupBytes: cfg.MaxBackupBytes,
		logger:         logging.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Log exposes the underlying history.
func (m *Manager) Log() *Log {
	return m.log
}

// StateRoot returns the directory holding backups/ and trash/, resolved now.
func (m *Manager) StateRoot() (string, error) {
	return stateRoot(m.backups.stateDir)
}

// Snapshot copies path into the backup store and records a ContentRestore.
// Call it before overwriting path. It returns "" with no error when path does
// not exist or is at or above the size ceiling; the overwrite then proceeds
// without undo coverage.
func (m *Manager) Snapshot(conversationID, path string) (string, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.NewIOFailure("read metadata", err)
	}
	if info.IsDir() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("cannot snapshot a directory: %s", path))
	}
	if m.maxBackupBytes > 0 && info.Size() >= m.maxBackupBytes {
		m.logger.Warn("undo.snapshot_skipped",
			"conversation_id", conversationID,
			"path", path,
			"size", info.Size(),
			"limit", m.maxBackupBytes)
		return "", nil
	}

	ts := m.now().Unix()
	backupPath, err := m.backups.copyIn(conversationID, path, ts, info)
	if err != nil {
		return "", err
	}

	m.record(conversationID, ContentRestore{
		Header:     m.newHeader(ts),
		TargetPath: path,
		BackupPath: backupPath,
	})
	return backupPath, nil
}

// MoveToTrash relocates path into the trash and returns where it went.
// It records nothing; the caller registers the delete once it succeeded.
func (m *Manager) MoveToTrash(path string) (string, error) {
	return m.trash.moveIn(path, m.now().Unix())
}

// RegisterMove records that source was moved to destination.
func (m *Manager) RegisterMove(conversationID, source, destination string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}
	if source == "" || destination == "" {
		return errors.NewInvalidRequest("source and destination are required")
	}
	m.record(conversationID, MoveReverse{
		Header:   m.newHeader(m.now().Unix()),
		FromPath: destination,
		ToPath:   source,
	})
	return nil
}

// RegisterDelete records that originalPath was relocated to trashPath.
func (m *Manager) RegisterDelete(conversationID, originalPath, trashPath string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}
	if originalPath == "" || trashPath == "" {
		return errors.NewInvalidRequest("original_path and trash_path are required")
	}
	m.record(conversationID, DeleteRestore{
		Header:       m.newHeader(m.now().Unix()),
		TrashPath:    trashPath,
		OriginalPath: originalPath,
	})
	return nil
}

// UndoLast pops the newest action and reverses it. The action is consumed
// whether or not the reversal succeeds.
func (m *Manager) UndoLast(conversationID string) (string, error) {
	a, err := m.log.PopLatest(conversationID)
	if err != nil {
		return "", err
	}

	msg, err := reverse(a)
	if err != nil {
		m.logger.Warn("undo.reverse_failed",
			"conversation_id", conversationID,
			"id", HeaderOf(a).ID,
			"kind", a.Kind(),
			"error", err)
	} else {
		m.logger.Debug("undo.reversed",
			"conversation_id", conversationID,
			"id", HeaderOf(a).ID,
			"kind", a.Kind())
	}
	if m.journal != nil {
		m.journal.Undone(conversationID, a, msg, err)
	}
	return msg, err
}

// Preview describes what UndoLast would do next, without doing it.
type Preview struct {
	Action        Entry  `json:"action"`
	Description   string `json:"description"`
	Ready         bool   `json:"ready"`
	Problem       string `json:"problem,omitempty"`
	Diff          string `json:"diff,omitempty"`
	DiffTruncated bool   `json:"diff_truncated,omitempty"`

	// DiffUnavailable says why no diff was built. The undo itself may still work.
	DiffUnavailable string `json:"diff_unavailable,omitempty"`
}

// PreviewLatest peeks at the newest action. For content restores it includes a
// diff from the current target to the backed up content.
func (m *Manager) PreviewLatest(conversationID string) (*Preview, error) {
	a, err := m.log.PeekLatest(conversationID)
	if err != nil {
		return nil, err
	}

	p := &Preview{Action: Describe(a), Ready: true}
	switch a := a.(type) {
	case ContentRestore:
		p.Description = fmt.Sprintf("Restore content of %s from %s", a.TargetPath, a.BackupPath)
		if !exists(a.BackupPath) {
			p.Ready, p.Problem = false, fmt.Sprintf("Backup file missing: %s", a.BackupPath)
			break
		}
		d, truncated, err := contentDiff(a.TargetPath, a.BackupPath)
		if err != nil {
			m.logger.Debug("undo.preview_diff_skipped", "conversation_id", conversationID, "error", err)
			p.DiffUnavailable = err.Error()
			break
		}
		p.Diff, p.DiffTruncated = d, truncated
	case MoveReverse:
		p.Description = fmt.Sprintf("Move %s back to %s", a.FromPath, a.ToPath)
		if !exists(a.FromPath) {
			p.Ready, p.Problem = false, fmt.Sprintf("File not found at %s. Cannot move back.", a.FromPath)
		}
	case DeleteRestore:
		p.Description = fmt.Sprintf("Restore %s from trash", a.OriginalPath)
		if !exists(a.TrashPath) {
			p.Ready, p.Problem = false, fmt.Sprintf("Trash file missing: %s", a.TrashPath)
		}
	}
	return p, nil
}

// History returns the conversation's actions, newest first.
func (m *Manager) History(conversationID string) ([]Entry, error) {
	actions, err := m.log.Entries(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(actions))
	for i := len(actions) - 1; i >= 0; i-- {
		out = append(out, Describe(actions[i]))
	}
	return out, nil
}

// Conversations lists conversations that have history.
func (m *Manager) Conversations() []ConversationSummary {
	return m.log.Conversations()
}

// Clear forgets the conversation's history. Backups and trash stay on disk.
func (m *Manager) Clear(conversationID string) int {
	dropped := m.log.Clear(conversationID)
	m.logger.Debug("undo.cleared", "conversation_id", conversationID, "dropped", dropped)
	if m.journal != nil {
		m.journal.Cleared(conversationID, dropped)
	}
	return dropped
}

// Backups lists backup files for a conversation, or all when id is empty.
func (m *Manager) Backups(conversationID string) ([]StoredFile, error) {
	if conversationID != "" {
		if err := ValidateConversationID(conversationID); err != nil {
			return nil, err
		}
	}
	return m.backups.list(conversationID)
}

// Trash lists trash entries.
func (m *Manager) Trash() ([]StoredFile, error) {
	return m.trash.list()
}

func (m *Manager) record(conversationID string, a Action) {
	evicted := m.log.Record(conversationID, a)

	m.logger.Debug("undo.recorded",
		"conversation_id", conversationID,
		"id", HeaderOf(a).ID,
		"kind", a.Kind())
	if evicted != nil {
		m.logger.Debug("undo.evicted",
			"conversation_id", conversationID,
			"id", HeaderOf(evicted).ID,
			"kind", evicted.Kind())
	}

	if m.journal == nil {
		return
	}
	m.journal.Recorded(conversationID, a)
	if evicted != nil {
		m.journal.Evicted(conversationID, evicted)
	}
}

func (m *Manager) newHeader(ts int64) Header {
	return Header{ID: ulid.Make().String(), Timestamp: ts}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// contentDiff diffs the current target against the backup. A missing target
// diffs as empty. Unreadable or oversized files return an error and no diff.
func contentDiff(target, backup string) (string, bool, error) {
	after, err := readSmall(backup)
	if err != nil {
		return "", false, err
	}
	before, err := readSmall(target)
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}
	d, truncated := diff.Unified(string(before), string(after), 3, diff.MaxDiffLines)
	return d, truncated, nil
}

func readSmall(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > previewMaxBytes {
		return nil, fmt.Errorf("%s exceeds preview limit", path)
	}
	return os.ReadFile(path)
}
