package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"calstat/internal/analyzer"
	"calstat/internal/config"
	appLog "calstat/internal/log"
	"calstat/internal/model"
)

// LoadFunc loads the calendar and runs one analysis.
type LoadFunc func(ctx context.Context) (analyzer.Result, error)

// Server exposes the latest analysis snapshot over HTTP.
type Server struct {
	cfg    *config.Config
	order  []string
	load   LoadFunc
	router *mux.Router

	mu   sync.RWMutex
	snap *snapshot
}

// snapshot is the last successful analysis and when it was computed.
type snapshot struct {
	result      analyzer.Result
	generatedAt time.Time
}

// NewServer constructs a Server. order is the display order of categories.
func NewServer(cfg *config.Config, order []string, load LoadFunc) *Server {
	s := &Server{
		cfg:    cfg,
		order:  order,
		load:   load,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, wrapped with basic auth when configured.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

// Refresh reruns the analysis and swaps in the new snapshot. The previous
// snapshot stays in place when loading fails.
func (s *Server) Refresh(ctx context.Context) error {
	started := time.Now()
	res, err := s.load(ctx)
	if err != nil {
		appLog.Error("refresh failed", err)
		return err
	}

	s.mu.Lock()
	s.snap = &snapshot{result: res, generatedAt: time.Now()}
	s.mu.Unlock()

	appLog.Info("refresh completed", "categories", len(res.Events), "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func (s *Server) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="calstat", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/{category}", s.handleCategory).Methods(http.MethodGet)
	api.HandleFunc("/events/{category}", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statsResponse is the JSON shape of /api/stats.
type statsResponse struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Timezone    string                  `json:"timezone"`
	Window      analyzer.Window         `json:"window"`
	Categories  []string                `json:"categories"`
	TotalHours  map[string]float64      `json:"total_hours"`
	DayOfWeek   analyzer.DayOfWeekTable `json:"day_of_week"`
	Weekly      analyzer.WeeklyTable    `json:"weekly"`
	Monthly     analyzer.MonthlyTable   `json:"monthly"`
	Skipped     int                     `json:"skipped"`
	Recurring   int                     `json:"recurring"`
}

// categoryResponse is the JSON shape of /api/stats/{category}.
type categoryResponse struct {
	Category   string                         `json:"category"`
	TotalHours float64                        `json:"total_hours"`
	EventCount int                            `json:"event_count"`
	DayOfWeek  analyzer.WeekdayDistribution   `json:"day_of_week"`
	Weekly     map[string]analyzer.WeekStats  `json:"weekly"`
	Monthly    map[string]analyzer.MonthStats `json:"monthly"`
}

// eventDTO is a JSON-friendly view of a matched event.
type eventDTO struct {
	Start         time.Time `json:"start"`
	Summary       string    `json:"summary"`
	DurationHours float64   `json:"duration_hours"`
}

type eventsResponse struct {
	Category string     `json:"category"`
	Events   []eventDTO `json:"events"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no analysis available yet")
		return
	}
	res := snap.result

	totals := make(map[string]float64, len(res.Totals))
	for name, d := range res.Totals {
		totals[name] = d.Hours()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		GeneratedAt: snap.generatedAt,
		Timezone:    s.cfg.Timezone,
		Window:      res.Window,
		Categories:  s.categories(res),
		TotalHours:  totals,
		DayOfWeek:   res.DayOfWeek,
		Weekly:      res.Weekly,
		Monthly:     res.Monthly,
		Skipped:     res.Skipped,
		Recurring:   res.Recurring,
	})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	res, name, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{
		Category:   name,
		TotalHours: res.Totals[name].Hours(),
		EventCount: len(res.Events[name]),
		DayOfWeek:  res.DayOfWeek[name],
		Weekly:     res.Weekly[name],
		Monthly:    res.Monthly[name],
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	res, name, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Category: name,
		Events:   toDTOs(res.Events[name]),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	s.handleStats(w, r)
}

// lookup resolves the {category} route variable against the current
// snapshot, writing an error response when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (analyzer.Result, string, bool) {
	snap := s.current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no analysis available yet")
		return analyzer.Result{}, "", false
	}
	name := mux.Vars(r)["category"]
	if _, ok := snap.result.Events[name]; !ok {
		writeError(w, http.StatusNotFound, "unknown category")
		return analyzer.Result{}, "", false
	}
	return snap.result, name, true
}

func (s *Server) categories(res analyzer.Result) []string {
	out := make([]string, 0, len(res.Events))
	for _, name := range s.order {
		if _, ok := res.Events[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func toDTOs(events []model.MatchedEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, eventDTO{
			Start:         ev.Start,
			Summary:       ev.Summary,
			DurationHours: ev.Duration.Hours(),
		})
	}
	return out
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
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
