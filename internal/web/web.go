package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"jiracal/internal/calsync"
	"jiracal/internal/config"
	appLog "jiracal/internal/log"
)

// Status is the outcome of the most recent scheduled run.
type Status struct {
	mu sync.RWMutex

	runs      int
	failures  int
	lastStart time.Time
	lastEnd   time.Time
	lastRes   *calsync.Result
	lastErr   string
	nextRun   time.Time
}

// Begin marks the start of a run.
func (s *Status) Begin(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStart = at
}

// Finish records a finished run. A non-nil err marks it failed; res is kept
// either way because partial runs still report what they applied.
func (s *Status) Finish(at time.Time, res calsync.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastEnd = at
	s.lastRes = &res
	s.lastErr = ""
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
	}
}

// SetNext records when the scheduler will fire next.
func (s *Status) SetNext(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = at
}

type statusResponse struct {
	Runs      int             `json:"runs"`
	Failures  int             `json:"failures"`
	LastStart *time.Time      `json:"last_start,omitempty"`
	LastEnd   *time.Time      `json:"last_end,omitempty"`
	NextRun   *time.Time      `json:"next_run,omitempty"`
	Result    *calsync.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (s *Status) snapshot() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statusResponse{
		Runs:      s.runs,
		Failures:  s.failures,
		LastStart: timePtr(s.lastStart),
		LastEnd:   timePtr(s.lastEnd),
		NextRun:   timePtr(s.nextRun),
		Result:    s.lastRes,
		Error:     s.lastErr,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Server exposes /health and /api/status for the scheduler.
type Server struct {
	cfg    *config.Config
	status *Status
	mux    *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, status *Status) *Server {
	s := &Server{
		cfg:    cfg,
		status: status,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// HTTPServer wraps the handler for cfg.Listen; the caller owns
// ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="jiracal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GET /api/status
//   - 200 with the last run summary; "error" is set when it failed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.status.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
