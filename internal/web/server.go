package web

import (
	"context"
	"embed"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/logging"
	"github.com/kuse-dev/kuse/internal/undo"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownTimeout = 5 * time.Second

// NewServer creates the HTTP server for the Kuse dashboard. It shares mgr
// with the MCP server, so undo and clear from the browser act on the same
// history. j may be nil when the journal is disabled. Cross-origin requests
// with unsafe methods are rejected, since undo and clear rewrite files.
func NewServer(mgr *undo.Manager, cfg *config.Config, j *journal.Journal, logger *slog.Logger, version, addr string) (*http.Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	h := &Handlers{
		mgr:      mgr,
		cfg:      cfg,
		journal:  j,
		logger:   logger,
		version:  version,
		renderer: NewRenderer(templateSub, version, logger),
	}

	return &http.Server{
		Addr:              addr,
		Handler:           securityHeaders(http.NewCrossOriginProtection().Handler(h.routes(staticSub))),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func (h *Handlers) routes(static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/conversations", http.StatusFound)
	})
	mux.HandleFunc("GET /conversations", h.HandleList)
	mux.HandleFunc("GET /conversations/{id}", h.HandleDetail)
	mux.HandleFunc("GET /conversations/{id}/report", h.HandleReport)
	mux.HandleFunc("POST /conversations/{id}/undo", h.HandleUndo)
	mux.HandleFunc("DELETE /conversations/{id}", h.HandleClear)
	mux.HandleFunc("POST /conversations/{id}/clear", h.HandleClear)
	mux.HandleFunc("GET /journal", h.HandleJournal)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	return mux
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves srv until ctx is cancelled, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("web.listening", "addr", ln.Addr().String())
	if host, _, err := net.SplitHostPort(srv.Addr); err == nil {
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			logger.Warn("web.all_interfaces", "addr", srv.Addr, "hint", "the dashboard may be reachable from the network")
		}
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("web.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
