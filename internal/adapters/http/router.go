package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
	"github.com/kirillkom/shiftlog-retrieval/internal/observability/metrics"
)

// DocumentRemover deletes a document with everything derived from it.
type DocumentRemover interface {
	RemoveDocument(ctx context.Context, documentID string) error
}

// CorpusRebuilder replaces the sparse corpus from the fragment table.
type CorpusRebuilder interface {
	RebuildCorpus(ctx context.Context) error
}

type Services struct {
	Ingest    ports.DocumentIngestor
	Documents ports.DocumentReader
	Remover   DocumentRemover
	Retriever ports.Retriever
	Corpus    CorpusRebuilder
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(cfg config.Config, services Services, opts ...Option) *Router {
	rt := &Router{cfg: cfg, services: services}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler assembles routes and middleware. It fails only when the embedded
// OpenAPI document is invalid.
func (rt *Router) Handler() (http.Handler, error) {
	validator, err := newOpenAPIValidator()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("GET /v1/corpus/dates", rt.corpusDates)
	mux.HandleFunc("POST /v1/corpus/rebuild", rt.rebuildCorpus)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = validator.middleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueTimeout)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = recoverMiddleware(handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.services.Ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		strings.TrimSpace(r.FormValue("owner")),
		file,
	)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.services.Remover.RemoveDocument(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retrieveRequest struct {
	Question string   `json:"question"`
	Dates    []string `json:"dates"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var k int
	if err := runtime.BindQueryParameter("form", true, false, "k", r.URL.Query(), &k); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid parameter k: %v", err))
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.services.Retriever.RetrieveWith(r.Context(), domain.RetrievalRequest{
		Question: req.Question,
		Dates:    req.Dates,
		Final:    k,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if result.NoEvidence {
		slog.Info("retrieval_no_evidence",
			"request_id", requestIDFromContext(r.Context()),
			"strategy", string(result.Query.Strategy),
			"target_dates", len(result.Query.Dates),
		)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) corpusDates(w http.ResponseWriter, r *http.Request) {
	dates, err := rt.services.Retriever.AvailableDates(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

func (rt *Router) rebuildCorpus(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Corpus.RebuildCorpus(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilt"})
}
