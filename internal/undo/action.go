package undo

// Kind names an action variant.
type Kind string

const (
	KindContentRestore Kind = "content_restore"
	KindMoveReverse    Kind = "move_reverse"
	KindDeleteRestore  Kind = "delete_restore"
)

// Header carries the fields every recorded action has.
type Header struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

func (h Header) header() Header { return h }

// Action is a recorded mutation together with what it takes to reverse it.
// The set of implementations is closed: ContentRestore, MoveReverse and
// DeleteRestore. reverse switches over exactly these three.
type Action interface {
	Kind() Kind
	header() Header
}

// ContentRestore reverses a write or edit. BackupPath holds the bytes
// TargetPath had before it was overwritten.
type ContentRestore struct {
	Header
	TargetPath string `json:"target_path"`
	BackupPath string `json:"backup_path"`
}

func (ContentRestore) Kind() Kind { return KindContentRestore }

// MoveReverse reverses a move. FromPath is where the file is now, ToPath is
// where it goes back to.
type MoveReverse struct {
	Header
	FromPath string `json:"from_path"`
	ToPath   string `json:"to_path"`
}

func (MoveReverse) Kind() Kind { return KindMoveReverse }

// DeleteRestore reverses a delete-as-relocate. TrashPath is where the file
// is now, OriginalPath is where it goes back to.
type DeleteRestore struct {
	Header
	TrashPath    string `json:"trash_path"`
	OriginalPath string `json:"original_path"`
}

func (DeleteRestore) Kind() Kind { return KindDeleteRestore }

// HeaderOf returns the id and timestamp of a.
func HeaderOf(a Action) Header {
	return a.header()
}

// Entry is a flat, serializable view of an action.
type Entry struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Path      string `json:"path"`   // what the reversal writes
	Source    string `json:"source"` // what the reversal reads
}

// Describe flattens a into an Entry.
func Describe(a Action) Entry {
	h := a.header()
	e := Entry{ID: h.ID, Kind: a.Kind(), Timestamp: h.Timestamp}
	switch a := a.(type) {
	case ContentRestore:
		e.Path, e.Source = a.TargetPath, a.BackupPath
	case MoveReverse:
		e.Path, e.Source = a.ToPath, a.FromPath
	case DeleteRestore:
		e.Path, e.Source = a.OriginalPath, a.TrashPath
	}
	return e
}
