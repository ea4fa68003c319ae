package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cameronsjo/berth/internal/ui"
)

// Server serves health, readiness, status and metrics.
type Server struct {
	daemon *Daemon
	server *http.Server
}

// NewServer creates a new HTTP server for the daemon.
func NewServer(d *Daemon) *Server {
	s := &Server{daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// loggingMiddleware logs HTTP requests at trace verbosity.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		ui.Trace("HTTP %s %s %d %s", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.daemon.HealthStatus()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(status)
}

// handleReady handles the readiness check endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.daemon.IsReady() {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleStatus serves the lock table and loop state as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(s.daemon.Status())
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Ready       bool             `json:"ready"`
	Uptime      string           `json:"uptime"`
	Cycles      int              `json:"cycles"`
	LastCycle   *CycleSummary    `json:"last_cycle,omitempty"`
	LastPublish *PublishSummary  `json:"last_publish,omitempty"`
	Locations   []LocationStatus `json:"locations"`
	Locks       []LockStatus     `json:"locks"`
}

// CycleSummary describes the last reconciliation cycle.
type CycleSummary struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Acquired int       `json:"acquired"`
	Failed   int       `json:"failed"`
	Released int       `json:"released"`
}

// PublishSummary describes the last publish attempt.
type PublishSummary struct {
	At        time.Time `json:"at"`
	Path      string    `json:"path,omitempty"`
	Published int       `json:"published"`
	Excluded  int       `json:"excluded"`
	Size      string    `json:"size,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LocationStatus describes one remote location in the last cycle.
type LocationStatus struct {
	Location    string     `json:"location"`
	Staging     string     `json:"staging"`
	Records     int        `json:"records"`
	Error       string     `json:"error,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// LockStatus describes one lock table entry.
type LockStatus struct {
	Key     string    `json:"key"`
	Path    string    `json:"path"`
	State   string    `json:"state"`
	Since   time.Time `json:"since"`
	HeldFor string    `json:"held_for"`
	Error   string    `json:"error,omitempty"`
}

// Status assembles the /status view.
func (d *Daemon) Status() StatusResponse {
	rs := d.reconciler.Status()
	now := time.Now()

	resp := StatusResponse{
		Ready:     d.IsReady(),
		Uptime:    units.HumanDuration(now.Sub(d.started)),
		Cycles:    rs.Cycles,
		Locations: []LocationStatus{},
		Locks:     make([]LockStatus, 0, len(rs.Entries)),
	}

	if c := rs.LastCycle; c != nil {
		resp.LastCycle = &CycleSummary{
			ID:       c.ID,
			Started:  c.Started,
			Duration: c.Duration.Round(time.Millisecond).String(),
			Acquired: len(c.Acquired),
			Failed:   len(c.Failed),
			Released: len(c.Released),
		}
		for _, l := range c.Locations {
			ls := LocationStatus{Location: l.Location, Staging: l.Staging, Records: l.Records}
			if l.Err != nil {
				ls.Error = l.Err.Error()
			}
			if t, ok := rs.LastSuccess[l.Location]; ok {
				ls.LastSuccess = &t
			}
			resp.Locations = append(resp.Locations, ls)
		}
	}

	d.publishMu.RLock()
	p := d.lastPublish
	d.publishMu.RUnlock()
	if !p.at.IsZero() {
		ps := &PublishSummary{At: p.at}
		if p.err != nil {
			ps.Error = p.err.Error()
		} else if p.result != nil {
			ps.Path = p.result.Path
			ps.Published = p.result.Published
			ps.Excluded = p.result.Excluded
			ps.Size = units.HumanSize(float64(p.size))
		}
		resp.LastPublish = ps
	}

	for _, e := range rs.Entries {
		ls := LockStatus{
			Key:     e.Key,
			Path:    e.Path,
			State:   e.State.String(),
			Since:   e.Since,
			HeldFor: units.HumanDuration(now.Sub(e.Since)),
		}
		if e.Err != nil {
			ls.Error = e.Err.Error()
		}
		resp.Locks = append(resp.Locks, ls)
	}

	return resp
}
