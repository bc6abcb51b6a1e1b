package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shipping-bot/internal/refdata"
	"shipping-bot/internal/service"
)

const requestIDHeader = "X-Request-ID"

// Server exposes the quote service over HTTP.
type Server struct {
	svc    *service.Service
	logger zerolog.Logger
}

// New builds the HTTP handler for svc.
func New(svc *service.Service, logger zerolog.Logger) http.Handler {
	s := &Server{
		svc:    svc,
		logger: logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/quotes", s.handleQuotes)
		r.Get("/carriers", s.handleCarriers)
		r.Get("/countries/resolve", s.handleResolve)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	weight, err := service.ParseWeight(q.Get("weight"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_weight", err.Error())
		return
	}
	conditions, err := parseConditionParams(q["condition"])
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_condition", err.Error())
		return
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
	}
	realtime, _ := strconv.ParseBool(q.Get("realtime"))

	res, err := s.svc.Quote(r.Context(), service.Request{
		Destination: q.Get("destination"),
		WeightKg:    weight,
		Conditions:  conditions,
		Carriers:    splitList(q.Get("carriers")),
		Limit:       limit,
		Realtime:    realtime,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCarriers(w http.ResponseWriter, _ *http.Request) {
	carriers, err := s.svc.Carriers()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"carriers": carriers})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	code, name, ok := s.svc.Resolve(text)
	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "unknown_country", "no country matches "+strconv.Quote(text))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"query": text, "code": code, "name": name})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidWeight):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_weight", err.Error())
	case errors.Is(err, service.ErrWeightAboveLimit):
		writeErrorJSON(w, http.StatusBadRequest, "weight_above_limit", err.Error())
	case errors.Is(err, service.ErrEmptyDestination):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrSnapshotNotLoaded):
		writeErrorJSON(w, http.StatusServiceUnavailable, "not_ready", "reference data not loaded")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeErrorJSON(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// parseConditionParams reads repeated key:value parameters.
func parseConditionParams(values []string) (refdata.Conditions, error) {
	out := refdata.Conditions{}
	for _, v := range values {
		key, value, ok := strings.Cut(v, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New("condition must be key:value, got " + strconv.Quote(v))
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// requestIDMiddleware propagates X-Request-ID or generates one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", w.Header().Get(requestIDHeader)).
			Msg("request served")
	})
}
