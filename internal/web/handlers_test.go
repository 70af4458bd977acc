package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/ops"
	"github.com/kuse-dev/kuse/internal/undo"
)

type testEnv struct {
	handler http.Handler
	mgr     *undo.Manager
	cfg     *config.Config
}

func setupTest(t *testing.T, withJournal bool) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.ProjectRoot = t.TempDir()

	var j *journal.Journal
	opts := []undo.Option{}
	if withJournal {
		database, err := journal.Open(t.TempDir())
		if err != nil {
			t.Fatalf("journal.Open: %v", err)
		}
		t.Cleanup(func() { database.Close() })
		j = journal.New(database, nil)
		opts = append(opts, undo.WithJournal(j))
	}
	mgr := undo.NewManager(cfg, opts...)

	srv, err := NewServer(mgr, cfg, j, nil, "test", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testEnv{handler: srv.Handler, mgr: mgr, cfg: cfg}
}

// seedWrite overwrites rel twice so conv has two content restores.
func seedWrite(t *testing.T, env *testEnv, conv, rel string) string {
	t.Helper()
	p := filepath.Join(env.cfg.ProjectRoot, rel)
	if err := os.WriteFile(p, []byte("original\n"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	for _, content := range []string{"first\n", "second\n"} {
		_, err := ops.WriteFile(context.Background(), env.mgr, env.cfg, nil, ops.WriteInput{
			ConversationID: conv,
			Path:           rel,
			Content:        content,
		})
		if err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return p
}

func (e *testEnv) do(t *testing.T, method, target string, jsonAccept bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if jsonAccept {
		req.Header.Set("Accept", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body: %v\n%s", err, rec.Body.String())
	}
}

// --- Routing ---

func TestRootRedirects(t *testing.T) {
	env := setupTest(t, false)
	rec := env.do(t, http.MethodGet, "/", false)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/conversations" {
		t.Errorf("Location = %q, want /conversations", loc)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTest(t, false)
	rec := env.do(t, http.MethodGet, "/conversations", false)
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy missing")
	}
}

func TestStaticServed(t *testing.T) {
	env := setupTest(t, false)
	rec := env.do(t, http.MethodGet, "/static/style.css", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- HandleList ---

func TestHandleList_JSON(t *testing.T) {
	env := setupTest(t, false)
	seedWrite(t, env, "conv-a", "a.txt")

	rec := env.do(t, http.MethodGet, "/conversations", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.ListConversationsOutput
	decodeBody(t, rec, &out)
	if len(out.Conversations) != 1 || out.Conversations[0].ID != "conv-a" || out.Conversations[0].Depth != 2 {
		t.Errorf("Conversations = %+v", out.Conversations)
	}
	if out.Capacity != env.cfg.HistoryCap {
		t.Errorf("Capacity = %d, want %d", out.Capacity, env.cfg.HistoryCap)
	}
}

func TestHandleList_HTML(t *testing.T) {
	env := setupTest(t, false)
	rec := env.do(t, http.MethodGet, "/conversations", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No conversation has undoable changes") {
		t.Errorf("empty state missing from body")
	}

	seedWrite(t, env, "conv-a", "a.txt")
	rec = env.do(t, http.MethodGet, "/conversations", false)
	if !strings.Contains(rec.Body.String(), `href="/conversations/conv-a"`) {
		t.Errorf("conversation link missing from body:\n%s", rec.Body.String())
	}
}

// --- HandleDetail ---

func TestHandleDetail(t *testing.T) {
	env := setupTest(t, false)
	p := seedWrite(t, env, "conv-a", "a.txt")

	rec := env.do(t, http.MethodGet, "/conversations/conv-a", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.HistoryOutput
	decodeBody(t, rec, &out)
	if len(out.Actions) != 2 {
		t.Fatalf("len(Actions) = %d, want 2", len(out.Actions))
	}
	if out.Actions[0].Kind != undo.KindContentRestore || out.Actions[0].Path != p {
		t.Errorf("Actions[0] = %+v", out.Actions[0])
	}

	rec = env.do(t, http.MethodGet, "/conversations/conv-a", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Next undo") || !strings.Contains(body, "-second") {
		t.Errorf("preview with diff missing from body:\n%s", body)
	}
}

func TestHandleDetail_UnknownConversation(t *testing.T) {
	env := setupTest(t, false)

	rec := env.do(t, http.MethodGet, "/conversations/nobody", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &out)
	if out.Error.Code != "NO_HISTORY" {
		t.Errorf("code = %q, want NO_HISTORY", out.Error.Code)
	}

	rec = env.do(t, http.MethodGet, "/conversations/nobody", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("html status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error 404") {
		t.Errorf("error page missing")
	}
}

// --- HandleReport ---

func TestHandleReport(t *testing.T) {
	env := setupTest(t, false)
	seedWrite(t, env, "conv-a", "a.txt")

	rec := env.do(t, http.MethodGet, "/conversations/conv-a/report?format=md", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	md := rec.Body.String()
	if !strings.Contains(md, "# Conversation `conv-a`") || !strings.Contains(md, "2 of 10 undo slots used.") {
		t.Errorf("unexpected markdown:\n%s", md)
	}

	rec = env.do(t, http.MethodGet, "/conversations/conv-a/report", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<table>") || !strings.Contains(body, `class="language-diff"`) {
		t.Errorf("rendered report missing table or diff block:\n%s", body)
	}
}

func TestBuildReport_Empty(t *testing.T) {
	md := buildReport(&ops.HistoryOutput{ConversationID: "c", Capacity: 10}, nil)
	if !strings.Contains(md, "0 of 10 undo slots used.") || !strings.Contains(md, "Nothing to undo.") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
}

func TestCell(t *testing.T) {
	if got := cell("a|b`c"); got != `a\|b'c` {
		t.Errorf("cell = %q", got)
	}
}

// --- HandleUndo ---

func TestHandleUndo(t *testing.T) {
	env := setupTest(t, false)
	p := seedWrite(t, env, "conv-a", "a.txt")

	rec := env.do(t, http.MethodPost, "/conversations/conv-a/undo", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out ops.UndoOutput
	decodeBody(t, rec, &out)
	if out.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", out.Remaining)
	}
	if data, _ := os.ReadFile(p); string(data) != "first\n" {
		t.Errorf("content = %q, want %q", data, "first\n")
	}

	// Form post redirects back to the conversation
	rec = env.do(t, http.MethodPost, "/conversations/conv-a/undo", false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/conversations?message=") {
		t.Errorf("Location = %q", loc)
	}
	if data, _ := os.ReadFile(p); string(data) != "original\n" {
		t.Errorf("content = %q, want %q", data, "original\n")
	}

	rec = env.do(t, http.MethodPost, "/conversations/conv-a/undo", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("exhausted status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOTHING_TO_UNDO") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// --- HandleClear ---

func TestHandleClear(t *testing.T) {
	env := setupTest(t, false)
	seedWrite(t, env, "conv-a", "a.txt")

	rec := env.do(t, http.MethodDelete, "/conversations/conv-a", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.ClearOutput
	decodeBody(t, rec, &out)
	if !out.Cleared || out.Dropped != 2 {
		t.Errorf("out = %+v", out)
	}
	if env.mgr.Log().Len("conv-a") != 0 {
		t.Error("history survived clear")
	}

	seedWrite(t, env, "conv-b", "b.txt")
	rec = env.do(t, http.MethodPost, "/conversations/conv-b/clear", false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("form status = %d, want 303", rec.Code)
	}
}

func TestHandleClear_InvalidID(t *testing.T) {
	env := setupTest(t, false)
	rec := env.do(t, http.MethodDelete, "/conversations/..", true)
	if rec.Code == http.StatusOK {
		t.Fatalf("status = 200 for invalid conversation id")
	}
}

// --- Cross-origin protection ---

func TestMutatingRoutes_RejectCrossOrigin(t *testing.T) {
	env := setupTest(t, false)
	p := seedWrite(t, env, "victim", "a.txt")

	tests := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/conversations/victim/undo"},
		{http.MethodPost, "/conversations/victim/clear"},
		{http.MethodDelete, "/conversations/victim"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(""))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Origin", "https://evil.example")
			req.Header.Set("Sec-Fetch-Site", "cross-site")
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
		})
	}

	if data, _ := os.ReadFile(p); string(data) != "second\n" {
		t.Errorf("content = %q, want unchanged %q", data, "second\n")
	}
	if env.mgr.Log().Len("victim") != 2 {
		t.Errorf("history length = %d, want 2", env.mgr.Log().Len("victim"))
	}
}

func TestMutatingRoutes_AllowSameOrigin(t *testing.T) {
	env := setupTest(t, false)
	p := seedWrite(t, env, "conv-a", "a.txt")

	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-a/undo", nil)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if data, _ := os.ReadFile(p); string(data) != "first\n" {
		t.Errorf("content = %q, want %q", data, "first\n")
	}
}

func TestSafeMethods_AllowCrossOrigin(t *testing.T) {
	env := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- HandleJournal ---

func TestHandleJournal(t *testing.T) {
	env := setupTest(t, true)
	seedWrite(t, env, "conv-a", "a.txt")
	seedWrite(t, env, "conv-b", "b.txt")

	rec := env.do(t, http.MethodGet, "/journal?conversation=conv-a", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out journal.ListOutput
	decodeBody(t, rec, &out)
	if out.Total != 2 {
		t.Errorf("Total = %d, want 2", out.Total)
	}
	for _, e := range out.Events {
		if e.ConversationID != "conv-a" || e.Event != journal.EventRecorded {
			t.Errorf("unexpected event %+v", e)
		}
	}

	rec = env.do(t, http.MethodGet, "/journal?limit=1", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Older") {
		t.Errorf("pager missing from body")
	}
}

func TestHandleJournal_Disabled(t *testing.T) {
	env := setupTest(t, false)

	rec := env.do(t, http.MethodGet, "/journal", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/journal", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "The journal is disabled") {
		t.Errorf("disabled notice missing")
	}
}

// --- Run ---

func TestRun_ShutsDownOnCancel(t *testing.T) {
	env := setupTest(t, false)
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: env.handler}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, nil) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x", nil)
	if got := parseIntParam(req, "limit", 1); got != 5 {
		t.Errorf("limit = %d, want 5", got)
	}
	if got := parseIntParam(req, "bad", 7); got != 7 {
		t.Errorf("bad = %d, want 7", got)
	}
	if got := parseIntParam(req, "missing", 9); got != 9 {
		t.Errorf("missing = %d, want 9", got)
	}
}
