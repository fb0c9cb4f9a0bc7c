// Package fake serves a deterministic monitoring API with the endpoints
// httpapi.Client speaks. It backs the fakeupstream command and the tests of
// every package that talks to a datasource.
package fake

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/upstream"
)

const (
	defaultStep = 60
	maxPoints   = 1000
)

// Config describes the data a fake server serves.
type Config struct {
	// Token, when set, is required as a bearer token on every request.
	Token string
	// Latency is added to every response.
	Latency  time.Duration
	Metrics  []string
	Entities []upstream.Entity
}

// DefaultConfig returns a small fixed data set.
func DefaultConfig() Config {
	return Config{
		Metrics: []string{
			"cpu.usage", "cpu.steal", "mem.used", "mem.free",
			"http.requests", "http.errors", "http.latency.p99",
		},
		Entities: []upstream.Entity{
			{ID: "h-1", Name: "web-1", Type: "host"},
			{ID: "h-2", Name: "web-2", Type: "host"},
			{ID: "h-3", Name: "db-1", Type: "host"},
			{ID: "s-1", Name: "checkout", Type: "service"},
			{ID: "s-2", Name: "search", Type: "service"},
		},
	}
}

// Server is an http.Handler serving the fake API.
type Server struct {
	cfg    Config
	router *chi.Mux

	requests atomic.Int64

	mu       sync.Mutex
	failures []int // statuses returned by the next requests, in order
}

// NewServer creates a fake API serving cfg.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg, router: chi.NewRouter()}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.authenticate)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/series", s.handleSeries)
		r.Get("/entities", s.handleEntities)
		r.Get("/metrics", s.handleMetrics)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next len(statuses) requests fail with the given
// statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns how many requests the server has received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		var status int
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}

		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	var q upstream.SeriesQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !s.hasMetric(q.Metric) {
		http.Error(w, "unknown metric "+q.Metric, http.StatusNotFound)
		return
	}
	if !q.Range.To.After(q.Range.From) {
		http.Error(w, "empty time range", http.StatusBadRequest)
		return
	}

	step := q.StepSeconds
	if step <= 0 {
		step = defaultStep
	}

	labels := map[string]string{}
	for k, v := range q.Filter {
		labels[k] = v
	}
	if acct := r.Header.Get("X-Account-Id"); acct != "" {
		labels["account"] = acct
	}

	series := model.Series{
		Name:   q.Metric,
		Labels: labels,
		Points: points(q.Metric+"|"+labels["entity"], q.Range, time.Duration(step)*time.Second),
	}
	writeJSON(w, map[string]any{"series": []model.Series{series}})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	search := strings.ToLower(r.URL.Query().Get("search"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entities := make([]upstream.Entity, 0, len(s.cfg.Entities))
	for _, e := range s.cfg.Entities {
		if typ != "" && e.Type != typ {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Name), search) {
			continue
		}
		entities = append(entities, e)
		if limit > 0 && len(entities) == limit {
			break
		}
	}
	writeJSON(w, map[string]any{"entities": entities})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	metrics := make([]string, 0, len(s.cfg.Metrics))
	for _, m := range s.cfg.Metrics {
		if strings.HasPrefix(m, prefix) {
			metrics = append(metrics, m)
		}
	}
	sort.Strings(metrics)
	writeJSON(w, map[string]any{"metrics": metrics})
}

func (s *Server) hasMetric(name string) bool {
	for _, m := range s.cfg.Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// points returns a reproducible wave for seed sampled every step across rng.
func points(seed string, rng model.TimeRange, step time.Duration) []model.Point {
	h := fnv.New32a()
	h.Write([]byte(seed))
	base := float64(h.Sum32() % 100)

	from := rng.From.UTC().Truncate(step)
	var out []model.Point
	for t := from; !t.After(rng.To) && len(out) < maxPoints; t = t.Add(step) {
		if t.Before(rng.From) {
			continue
		}
		v := base + 10*math.Sin(float64(t.Unix())/600)
		out = append(out, model.Point{Time: t, Value: math.Round(v*100) / 100})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
