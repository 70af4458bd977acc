package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/undo"
)

func TestReadFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.write(t, "notes.md", "one\ntwo\nthree")

	out, err := ReadFile(ctx, env.cfg, ReadInput{Path: "notes.md"})
	require.NoError(t, err)
	require.Equal(t, p, out.Path)
	require.Equal(t, "one\ntwo\nthree", out.Content)
	require.Equal(t, int64(13), out.Size)
	require.Equal(t, 3, out.Lines)

	_, err = ReadFile(ctx, env.cfg, ReadInput{Path: "missing.md"})
	require.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)

	require.NoError(t, os.Mkdir(env.path("dir"), 0755))
	_, err = ReadFile(ctx, env.cfg, ReadInput{Path: "dir"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	env.write(t, "bin.dat", "\xff\xfe\x00")
	_, err = ReadFile(ctx, env.cfg, ReadInput{Path: "bin.dat"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	// Nothing is recorded for reads
	require.Equal(t, 0, env.mgr.Log().Len(testConv))
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
		{"\n\n", 2},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, countLines(tt.in), "input %q", tt.in)
	}
}

func TestWriteFile_SnapshotsExistingFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.write(t, "a.txt", "original")

	out, err := WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{
		ConversationID: testConv,
		Path:           "a.txt",
		Content:        "replaced",
	})
	require.NoError(t, err)
	require.False(t, out.Created)
	require.True(t, out.Undoable)
	require.Equal(t, 8, out.Bytes)
	require.Equal(t, "replaced", readString(t, p))

	require.True(t, strings.HasPrefix(out.BackupPath, filepath.Join(env.stateDir, "backups", testConv)))
	require.Equal(t, "original", readString(t, out.BackupPath))
	require.Equal(t, 1, env.mgr.Log().Len(testConv))
}

func TestWriteFile_NewFileIsNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{
		ConversationID: testConv,
		Path:           "nested/dir/new.txt",
		Content:        "hello",
	})
	require.NoError(t, err)
	require.True(t, out.Created)
	require.False(t, out.Undoable)
	require.Empty(t, out.BackupPath)
	require.Equal(t, "hello", readString(t, env.path("nested/dir/new.txt")))
	require.Equal(t, 0, env.mgr.Log().Len(testConv))
}

func TestWriteFile_OversizeProceedsWithoutBackup(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxBackupBytes = 4
	env.mgr = undo.NewManager(env.cfg)
	ctx := context.Background()
	p := env.write(t, "big.txt", "1234")

	out, err := WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{
		ConversationID: testConv,
		Path:           "big.txt",
		Content:        "new",
	})
	require.NoError(t, err)
	require.False(t, out.Undoable)
	require.Equal(t, "new", readString(t, p))
	require.Equal(t, 0, env.mgr.Log().Len(testConv))
}

func TestWriteFile_SnapshotFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.write(t, "a.txt", "original")

	// A file where the state directory should be makes every backup fail.
	blocker := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	env.cfg.StateDir = blocker
	env.mgr = undo.NewManager(env.cfg)

	out, err := WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{
		ConversationID: testConv,
		Path:           "a.txt",
		Content:        "replaced",
	})
	require.NoError(t, err)
	require.False(t, out.Undoable)
	require.Equal(t, "replaced", readString(t, p))
}

func TestWriteFile_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{Path: "a.txt", Content: "x"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	_, err = WriteFile(ctx, env.mgr, env.cfg, nil, WriteInput{ConversationID: testConv, Content: "x"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	_, err = os.Stat(env.path("a.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestEditFile(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		input      EditInput
		want       string
		wantCount  int
		wantErrFor errors.ErrorCode
	}{
		{
			name:      "single replacement",
			content:   "func a() {}\nfunc b() {}\n",
			input:     EditInput{OldString: "func a()", NewString: "func alpha()"},
			want:      "func alpha() {}\nfunc b() {}\n",
			wantCount: 1,
		},
		{
			name:      "replace all",
			content:   "x x x",
			input:     EditInput{OldString: "x", NewString: "y", ReplaceAll: true},
			want:      "y y y",
			wantCount: 3,
		},
		{
			name:       "ambiguous match",
			content:    "x x",
			input:      EditInput{OldString: "x", NewString: "y"},
			wantErrFor: errors.ErrInvalidRequest,
		},
		{
			name:       "no match",
			content:    "abc",
			input:      EditInput{OldString: "zzz", NewString: "y"},
			wantErrFor: errors.ErrInvalidRequest,
		},
		{
			name:       "empty old string",
			content:    "abc",
			input:      EditInput{NewString: "y"},
			wantErrFor: errors.ErrInvalidRequest,
		},
		{
			name:       "identical strings",
			content:    "abc",
			input:      EditInput{OldString: "a", NewString: "a"},
			wantErrFor: errors.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.write(t, "f.go", tt.content)
			in := tt.input
			in.ConversationID = testConv
			in.Path = "f.go"

			out, err := EditFile(context.Background(), env.mgr, env.cfg, nil, in)
			if tt.wantErrFor != "" {
				require.True(t, errors.Is(err, tt.wantErrFor), "got %v", err)
				require.Equal(t, tt.content, readString(t, p), "file must be untouched")
				require.Equal(t, 0, env.mgr.Log().Len(testConv), "nothing recorded on failure")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCount, out.Replacements)
			require.True(t, out.Undoable)
			require.Equal(t, tt.want, readString(t, p))
			require.Equal(t, tt.content, readString(t, out.BackupPath))
		})
	}
}

func TestEditFile_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := EditFile(context.Background(), env.mgr, env.cfg, nil, EditInput{
		ConversationID: testConv,
		Path:           "nope.txt",
		OldString:      "a",
		NewString:      "b",
	})
	require.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
}
