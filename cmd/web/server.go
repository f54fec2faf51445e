package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lookbook-ai/internal/pipeline"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/prompt"
	"lookbook-ai/internal/validate"
)

const (
	maxBodyBytes = 1 << 20
	maxBatch     = 32
)

type server struct {
	svc      *pipeline.Service
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

type apiError struct {
	Error string `json:"error"`
}

type presetList struct {
	Version  string             `json:"version"`
	Presets  []preset.Preset    `json:"presets"`
	Rejected []preset.Rejection `json:"rejected,omitempty"`
}

type batchRequest struct {
	Requests []pipeline.PrepareRequest `json:"requests"`
}

type batchResponse struct {
	Items []pipeline.BatchItem `json:"items"`
}

type validateResponse struct {
	RequestID string          `json:"request_id,omitempty"`
	Result    validate.Result `json:"result"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(withLogging(s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/presets", s.handleListPresets)
		r.Get("/presets/{id}", s.handleGetPreset)
		r.Post("/prepare", s.handlePrepare)
		r.Post("/prepare/batch", s.handlePrepareBatch)
		r.Post("/validate", s.handleValidate)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"catalog": s.svc.Catalog().Version(),
	})
}

func (s *server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	c := s.svc.Catalog()
	out := presetList{Version: c.Version(), Rejected: c.Rejected()}

	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		cat := preset.Category(strings.ToLower(raw))
		if !cat.Valid() {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "unknown category"})
			return
		}
		out.Presets = c.ListByCategory(cat)
	} else {
		out.Presets = c.ListAll()
	}
	if out.Presets == nil {
		out.Presets = []preset.Preset{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == preset.NeutralID {
		writeJSON(w, http.StatusOK, preset.Neutral())
		return
	}
	p, err := s.svc.Catalog().Get(id)
	switch {
	case errors.Is(err, preset.ErrRejected):
		writeJSON(w, http.StatusGone, apiError{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PrepareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := s.svc.Prepare(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, prompt.ErrMalformedPrompt):
		writeJSON(w, http.StatusUnprocessableEntity, out)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *server) handlePrepareBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "requests is empty"})
		return
	}
	if len(req.Requests) > maxBatch {
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: "too many requests in batch"})
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Items: s.svc.PrepareBatch(r.Context(), req.Requests)})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.svc.Validate(r.Context(), req)
	writeJSON(w, http.StatusOK, validateResponse{RequestID: req.RequestID, Result: res})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"dur_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
