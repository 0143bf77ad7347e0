package uiapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/awaistahir/smart-heat/internal/heating"
	"github.com/awaistahir/smart-heat/internal/prices"
	"github.com/awaistahir/smart-heat/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

type Server struct {
	svc      *heating.Service
	store    *store.Store
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewServer builds the dashboard API. gatherer may be nil to use the default
// Prometheus registry.
func NewServer(svc *heating.Service, st *store.Store, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		svc:      svc,
		store:    st,
		gatherer: gatherer,
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for local development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/rates", s.handleGetRates)
		r.Get("/heating-schedule", s.handleGetSchedule)
		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handleUpdateProfile)
		r.Get("/runs", s.handleGetRuns)
	})

	return r
}

// requestLogger logs each request through logrus instead of the chi default logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  version,
		"tariff":   s.svc.Tariff(),
		"timezone": s.svc.Location().String(),
	})
}

type ratesResponse struct {
	Rates   []engine.Rate `json:"rates"`
	Current *engine.Rate  `json:"current"`
	AsAt    time.Time     `json:"as_at"`
	Cached  bool          `json:"cached"`
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	res, err := s.svc.Rates(r.Context(), now)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch rates: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ratesResponse{
		Rates:   prices.Upcoming(res.Rates, now),
		Current: prices.CurrentRate(res.Rates, now),
		AsAt:    res.AsAt,
		Cached:  res.Cached,
	})
}

type scheduleResponse struct {
	Slots       []engine.SlotView   `json:"slots"`
	Transitions []engine.Transition `json:"transitions"`
	Summary     engine.Summary      `json:"summary"`
	Strategy    engine.Strategy     `json:"strategy"`
	HeatNow     bool                `json:"heat_now"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	res, profile, err := s.svc.Plan(r.Context(), now)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	on, _ := engine.StateAt(res.Plan, now)
	respondJSON(w, http.StatusOK, scheduleResponse{
		Slots:       res.Plan.Slots(profile.PowerKW),
		Transitions: res.Transitions,
		Summary:     res.Summary,
		Strategy:    profile.Config.Strategy,
		HeatNow:     on,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Profile()
	if errors.Is(err, heating.ErrNoProfile) {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile engine.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.svc.SaveProfile(&profile); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrUnsatisfiableWindow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("encoding response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
