package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/search/mode"
	"github.com/kailas-cloud/imgdex/internal/domain/search/request"
	"github.com/kailas-cloud/imgdex/internal/logger"
	batchuc "github.com/kailas-cloud/imgdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/imgdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/imgdex/internal/usecase/health"
	"github.com/kailas-cloud/imgdex/internal/usecase/maintenance"
	"github.com/kailas-cloud/imgdex/internal/usecase/pipeline"
	"github.com/kailas-cloud/imgdex/internal/usecase/reconcile"
	searchuc "github.com/kailas-cloud/imgdex/internal/usecase/search"
	"github.com/kailas-cloud/imgdex/internal/usecase/stats"
)

// DefaultMaxBodyBytes bounds request bodies. Ingest carries base64 image bytes.
const DefaultMaxBodyBytes = 64 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services are the use cases exposed over HTTP.
type Services struct {
	Documents   *documentuc.Service
	Search      *searchuc.Service
	Batch       *batchuc.Service
	Stats       *stats.Service
	Pipeline    *pipeline.Service
	Reconcile   *reconcile.Service
	Maintenance *maintenance.Service
	Health      *healthuc.Service
}

// Server is the imgdex HTTP API.
type Server struct {
	svc           Services
	defaults      pipeline.Params
	maxBodyBytes  int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. defaults are the pipeline parameters used
// when a request leaves them unset.
func NewServer(svc Services, defaults pipeline.Params, logger *zap.Logger) *Server {
	s := &Server{
		svc:          svc,
		defaults:     defaults,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrConsistency, http.StatusConflict, CodeConsistency),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, CodeGenerationFailed),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, CodeEmbeddingFailed),
		sentinelHandler(domain.ErrStore, http.StatusServiceUnavailable, CodeStoreUnavailable),
		sentinelHandler(domain.ErrCanceled, http.StatusServiceUnavailable, CodeCanceled),
	}
	return s
}

// WithMaxBodyBytes overrides the request body limit.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.IngestDocument)
		r.Get("/", s.ListDocuments)
		r.Post("/batch", s.BatchIngest)
		r.Delete("/batch", s.BatchDelete)
		r.Get("/{id}", s.GetDocument)
		r.Delete("/{id}", s.DeleteDocument)
	})

	r.Post("/search", s.Search)
	r.Get("/suggest", s.Suggest)
	r.Get("/stats", s.Stats)
	r.Post("/pipeline/run", s.RunPipeline)
	r.Post("/reconcile", s.Reconcile)
	r.Post("/sync", s.Sync)
}

// IngestDocument handles POST /documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !s.decode(w, r, &req) {
		return
	}

	doc, created, err := s.svc.Documents.Ingest(r.Context(), req.Content, req.attributes(), req.Objects)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, documentToResponse(&doc))
}

// GetDocument handles GET /documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(&doc))
}

// ListDocuments handles GET /documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	docs, next, err := s.svc.Documents.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = documentToResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Items: items, NextCursor: next, HasMore: next != ""})
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchIngest handles POST /documents/batch.
func (s *Server) BatchIngest(w http.ResponseWriter, r *http.Request) {
	var req BatchIngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "items must not be empty")
		return
	}

	items := make([]batchuc.Item, len(req.Items))
	for i := range req.Items {
		items[i] = batchuc.Item{
			Content:    req.Items[i].Content,
			Attributes: req.Items[i].attributes(),
			Objects:    req.Items[i].Objects,
		}
	}
	writeJSON(w, http.StatusOK, batchToResponse(s.svc.Batch.Ingest(r.Context(), items)))
}

// BatchDelete handles DELETE /documents/batch.
func (s *Server) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "ids must not be empty")
		return
	}
	writeJSON(w, http.StatusOK, batchToResponse(s.svc.Batch.Delete(r.Context(), req.IDs)))
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}

	limit := request.DefaultLimit
	if body.Limit != nil {
		limit = *body.Limit
	}
	req, err := request.New(body.Query, mode.Mode(body.Mode), limit, body.Threshold, body.Filters.criteria())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results, err := s.svc.Search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(results))
}

// Suggest handles GET /suggest?prefix=&limit=.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	names, err := s.svc.Documents.Suggest(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Items: nonNil(names)})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(st))
}

// RunPipeline handles POST /pipeline/run. The body is optional.
func (s *Server) RunPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipelineParams(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.Pipeline.RunBatch(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineToResponse(&rep))
}

// Reconcile handles POST /reconcile.
func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Reconcile.Reconcile(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileToResponse(&rep))
}

// Sync handles POST /sync: pipeline, reconcile and stats in one call.
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipelineParams(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.Maintenance.SyncAll(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncToResponse(&rep))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	// degraded still serves documents
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) pipelineParams(w http.ResponseWriter, r *http.Request) (pipeline.Params, bool) {
	var req PipelineRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return pipeline.Params{}, false
		}
	}
	if req.BatchSize < 0 || req.MaxDocuments < 0 || req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "pipeline parameters must not be negative")
		return pipeline.Params{}, false
	}

	p := req.params()
	if p.BatchSize == 0 {
		p.BatchSize = s.defaults.BatchSize
	}
	if p.MaxDocuments == 0 {
		p.MaxDocuments = s.defaults.MaxDocuments
	}
	if p.Concurrency == 0 {
		p.Concurrency = s.defaults.Concurrency
	}
	return p, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, CodeBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		}
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message. Caller input problems keep
// their detail; infrastructure failures are reduced to the sentinel text.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidQuery) ||
		errors.Is(err, domain.ErrDocumentNotFound) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrConsistency,
		domain.ErrGeneration,
		domain.ErrEmbedding,
		domain.ErrStore,
		domain.ErrCanceled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	_, log := logger.With(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
