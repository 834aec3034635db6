// Package server is a small read-only web view over digest state and the
// archive of delivered digests.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/pipeline"
	"github.com/TobiSchelling/ytdigest/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const recentRunsLimit = 50

// Server is the HTTP server for the digest archive.
type Server struct {
	db    *state.DB
	cfg   *config.Config
	log   zerolog.Logger
	pages map[string]*template.Template
	mux   *http.ServeMux
	now   func() time.Time
}

// New creates a new Server.
func New(db *state.DB, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"formatTime": formatTime,
		"derefTime": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return formatTime(*t)
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:    db,
		cfg:   cfg,
		log:   log,
		pages: pages,
		mux:   http.NewServeMux(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/runs/", s.handleRun)
}

type digestRow struct {
	ID        string
	Name      string
	Frequency config.Frequency
	Channels  int
	LastRun   *time.Time
	Seen      int
	Due       bool
	NextDue   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	now := s.now()
	rows := make([]digestRow, 0, len(s.cfg.Digests))
	for _, d := range s.cfg.Digests {
		st, err := s.db.LoadState(d.ID)
		if err != nil {
			s.log.Error().Err(err).Str("digest", d.ID).Msg("loading state")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		row := digestRow{
			ID:        d.ID,
			Name:      d.Name,
			Frequency: d.Frequency,
			Channels:  len(d.Channels),
			LastRun:   st.LastRun,
			Seen:      len(st.SeenIDs),
			Due:       pipeline.Due(d.Frequency, st.LastRun, now, false),
			NextDue:   "now",
		}
		if st.LastRun != nil && !row.Due {
			row.NextDue = formatTime(st.LastRun.Add(d.Frequency.Period()))
		}
		rows = append(rows, row)
	}

	runs, err := s.db.GetRecentRuns(recentRunsLimit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Digests": rows,
		"Runs":    runs,
	})
}

// handleRun serves /runs/<id> (details page) and /runs/<id>/html (the
// archived email body).
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if path == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	id, rest, _ := strings.Cut(path, "/")

	run, err := s.db.GetRun(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	switch rest {
	case "":
		s.render(w, "run.html", map[string]any{"Run": run})
	case "html":
		if run.HTML == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src https:; style-src 'unsafe-inline'")
		fmt.Fprint(w, run.HTML)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("rendering template")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			srv.log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	srv.log.Info().Str("addr", "http://"+addr).Msg("server listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
