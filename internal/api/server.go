// Package api serves the committed Gold tables and run snapshots as
// read-only JSON.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/export"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/query"
	"github.com/xtxerr/medallion/internal/retention"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "127.0.0.1:8088").
	Listen string

	Store warehouse.Store

	// Registry is exposed on /metrics. New registers a collector for the
	// warehouse tables and the newest snapshot on it. nil disables the
	// endpoint.
	Registry *prometheus.Registry

	// RunsDir is the snapshot root listed under /runs.
	RunsDir string

	// MaxRows caps the rows returned by /gold/{table}.
	MaxRows int

	// CORSOrigins are the allowed browser origins. Empty allows none.
	CORSOrigins []string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server is the read API.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	s := &Server{cfg: cfg}
	if cfg.Registry != nil {
		if err := cfg.Registry.Register(newWarehouseCollector(cfg.Store, cfg.RunsDir)); err != nil {
			logging.Component("api").Warn("register warehouse collector failed", "error", err)
		}
	}
	s.handler = otelhttp.NewHandler(s.routes(), "medallion.api")
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/tables", s.handleTables)
	r.Get("/gold/{table}", s.handleGold)
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleManifest)
	r.Get("/runs/{id}/tables/{table}", s.handleSnapshotTable)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logging.Component("api")

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Listen)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("stopped")
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": s.cfg.Store.Driver()})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	counts, err := query.Verify(r.Context(), s.cfg.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleGold returns the rows of one Gold table in its ranking order.
// ?limit=N returns at most N rows, never more than MaxRows.
func (s *Server) handleGold(w http.ResponseWriter, r *http.Request) {
	t, ok := schema.Lookup(chi.URLParam(r, "table"))
	if !ok || t.Layer != schema.LayerGold {
		writeError(w, http.StatusNotFound, "unknown gold table")
		return
	}

	limit, ok := s.limit(w, r)
	if !ok {
		return
	}

	if _, err := s.cfg.Store.Columns(r.Context(), t.Name); errors.Is(err, errors.ErrTableNotFound) {
		writeError(w, http.StatusNotFound, "table not built yet")
		return
	}
	total, err := s.cfg.Store.Count(r.Context(), t.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := warehouse.RecordsLimit(r.Context(), s.cfg.Store, t, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   t.Name,
		"columns": t.ColumnNames(),
		"rows":    rows,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := retention.New(s.cfg.RunsDir, 0).Runs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.runDir(w, r)
	if !ok {
		return
	}
	m, err := export.ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleSnapshotTable returns one table of a run snapshot as exported.
// ?limit=N applies as for /gold/{table}.
func (s *Server) handleSnapshotTable(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.runDir(w, r)
	if !ok {
		return
	}
	t, found := schema.Lookup(chi.URLParam(r, "table"))
	if !found || t.Layer == schema.LayerBronze {
		writeError(w, http.StatusNotFound, "unknown snapshot table")
		return
	}
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}

	rows, err := export.ReadRecords(dir, t)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(rows)))
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  chi.URLParam(r, "id"),
		"table":   t.Name,
		"columns": t.ColumnNames(),
		"rows":    rows,
	})
}

// runDir resolves the {id} parameter to a snapshot directory. Hidden and
// path-like ids are rejected.
func (s *Server) runDir(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || id != filepath.Base(id) || id[0] == '.' {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return "", false
	}
	return filepath.Join(s.cfg.RunsDir, id), true
}

// limit parses ?limit=N, capped by MaxRows. 0 means unlimited.
func (s *Server) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := s.cfg.MaxRows
	v := r.URL.Query().Get("limit")
	if v == "" {
		return limit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit <= 0 || n < limit {
		limit = n
	}
	return limit, true
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Component("api").Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			logging.Component("api").Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
