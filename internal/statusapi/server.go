package statusapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/governor"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

// Server holds the dependencies the status surface reads from. It never
// mutates job or rollout state directly — operator mutations go through
// cmd/rolloutctl, not HTTP.
type Server struct {
	jobs       domain.JobRepository
	rollout    *rollout.Controller
	gov        *governor.Governor
	corsOrigins string
	rateLimitPerMin int
}

// NewServer builds a Server.
func NewServer(jobs domain.JobRepository, rolloutController *rollout.Controller, gov *governor.Governor, corsOrigins string, rateLimitPerMin int) *Server {
	return &Server{jobs: jobs, rollout: rolloutController, gov: gov, corsOrigins: corsOrigins, rateLimitPerMin: rateLimitPerMin}
}

// parseOrigins splits a comma-separated origin list, defaulting to "*".
func parseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the read-only HTTP handler: job status, rollout
// query, health and Prometheus metrics.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer())
	r.Use(RequestID())
	r.Use(TimeoutMiddleware(10 * time.Second))
	r.Use(AccessLog())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: parseOrigins(s.corsOrigins),
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	limit := s.rateLimitPerMin
	if limit <= 0 {
		limit = 60
	}
	r.Use(httprate.LimitByIP(limit, time.Minute))

	r.Get("/healthz", s.healthzHandler())
	r.Get("/jobs/{id}", s.jobStatusHandler())
	r.Get("/rollout", s.rolloutQueryHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return SecurityHeaders(r)
}

func (s *Server) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) jobStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := s.jobs.Get(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) rolloutQueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feature := r.URL.Query().Get("feature")
		if feature == "" {
			feature = domain.DefaultFeature
		}
		cfg, err := s.rollout.Query(r.Context(), feature)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
