// Package diag exposes the engine's runtime state over a local HTTP
// listener: attached panels and the save-attempt journal. Read-only;
// disabled entirely when no listen address is configured.
package diag

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hazyhaar/calquick/internal/journal"
	"github.com/hazyhaar/calquick/internal/overlay"
)

// Panels lists the attached overlay panels.
type Panels interface {
	List() []overlay.PanelInfo
}

// Attempts reads the save-attempt journal.
type Attempts interface {
	Recent(ctx context.Context, n int) ([]journal.Attempt, error)
}

// Server is the diagnostics listener.
type Server struct {
	listen   string
	panels   Panels
	attempts Attempts // may be nil when the journal is disabled
	logger   *slog.Logger
}

// New creates a diagnostics server.
func New(listen string, panels Panels, attempts Attempts, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listen: listen, panels: panels, attempts: attempts, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(requestID(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/popups", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, s.panels.List())
	})

	r.Get("/attempts", func(w http.ResponseWriter, req *http.Request) {
		if s.attempts == nil {
			writeJSON(w, 404, map[string]string{"error": "journal disabled"})
			return
		}
		n, _ := strconv.Atoi(req.URL.Query().Get("n"))
		attempts, err := s.attempts.Recent(req.Context(), n)
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		if attempts == nil {
			attempts = []journal.Attempt{}
		}
		writeJSON(w, 200, attempts)
	})

	return r
}

// Run serves until ctx is cancelled. Never returns http.ErrServerClosed.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diag: listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
