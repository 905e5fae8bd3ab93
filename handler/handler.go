// Package handler serves the sync blob API: a JSON document store where
// POST / allocates an id, POST /{id} overwrites and GET /{id} reads.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stevemurr/lifeos/blob"
	"github.com/stevemurr/lifeos/metrics"
)

// DefaultMaxBody caps the size of an uploaded document.
const DefaultMaxBody = 5 << 20

// Handler holds the server dependencies and registers routes.
type Handler struct {
	blobs   blob.Store
	mux     *http.ServeMux
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
	maxBody int64
	exposed http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMetricsHandler serves mh on GET /metrics.
func WithMetricsHandler(mh http.Handler) Option {
	return func(h *Handler) { h.exposed = mh }
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

// WithIDGenerator overrides how new blob ids are chosen.
func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newID = fn }
}

// New creates a Handler and wires up all routes.
func New(s blob.Store, opts ...Option) *Handler {
	h := &Handler{
		blobs:   s,
		mux:     http.NewServeMux(),
		newID:   uuid.NewString,
		maxBody: DefaultMaxBody,
	}
	for _, o := range opts {
		o(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	if h.exposed != nil {
		h.mux.Handle("GET /metrics", h.exposed)
	}

	h.mux.HandleFunc("POST /{$}", h.instrument("create", h.createBlob))
	h.mux.HandleFunc("POST /{id}", h.instrument("write", h.writeBlob))
	h.mux.HandleFunc("GET /{id}", h.instrument("read", h.readBlob))
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// readDocument reads a JSON object body. On failure it writes the error
// response and returns ok=false.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	return b, true
}

// statusRecorder remembers the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		h.metrics.BlobRequest(op, rec.code)
		h.logger.Debug("blob request", "op", op, "id", r.PathValue("id"), "status", rec.code)
	}
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "LifeOS Sync Blob Service",
		"driver":  string(h.blobs.Driver()),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- blob endpoints ----------

func (h *Handler) createBlob(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	id := h.newID()
	if err := h.blobs.Put(r.Context(), id, body); err != nil {
		h.logger.Error("store blob", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not store document")
		return
	}
	h.metrics.BlobWrite(len(body))
	h.logger.Info("created blob", "id", id, "bytes", len(body))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) writeBlob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.blobs.Stat(r.Context(), id); err != nil {
		h.notFoundOr500(w, id, err)
		return
	}
	body, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	if err := h.blobs.Put(r.Context(), id, body); err != nil {
		h.logger.Error("store blob", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not store document")
		return
	}
	h.metrics.BlobWrite(len(body))
	writeRaw(w, http.StatusOK, body)
}

func (h *Handler) readBlob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := h.blobs.Get(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, id, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *Handler) notFoundOr500(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no document with id "+id)
		return
	}
	h.logger.Error("blob lookup", "id", id, "err", err)
	writeError(w, http.StatusInternalServerError, "could not read document")
}
