package chi

import (
	"time"

	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	"github.com/kailas-cloud/imgdex/internal/domain/search/result"
	"github.com/kailas-cloud/imgdex/internal/usecase/maintenance"
	"github.com/kailas-cloud/imgdex/internal/usecase/pipeline"
	"github.com/kailas-cloud/imgdex/internal/usecase/reconcile"
	"github.com/kailas-cloud/imgdex/internal/usecase/stats"
)

// ErrorCode is a machine-readable error kind in ErrorResponse.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeDocumentNotFound ErrorCode = "document_not_found"
	CodeConsistency      ErrorCode = "consistency_violation"
	CodeGenerationFailed ErrorCode = "generation_failed"
	CodeEmbeddingFailed  ErrorCode = "embedding_failed"
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeCanceled         ErrorCode = "canceled"
	CodeInternal         ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type geoJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type placeJSON struct {
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Street        string `json:"street,omitempty"`
	City          string `json:"city,omitempty"`
	Postcode      string `json:"postcode,omitempty"`
	Country       string `json:"country,omitempty"`
}

// IngestRequest carries the image bytes (base64 in JSON) and its metadata.
type IngestRequest struct {
	Content    []byte     `json:"content"`
	Name       string     `json:"name"`
	Path       string     `json:"path,omitempty"`
	AltPath    string     `json:"alt_path,omitempty"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Geo        *geoJSON   `json:"geo,omitempty"`
	Place      placeJSON  `json:"place"`
	Objects    []string   `json:"objects,omitempty"`
}

func (r *IngestRequest) attributes() domdoc.Attributes {
	attrs := domdoc.Attributes{
		Name:      r.Name,
		Path:      r.Path,
		AltPath:   r.AltPath,
		Width:     r.Width,
		Height:    r.Height,
		SizeBytes: r.SizeBytes,
		Place: domdoc.Place{
			Neighbourhood: r.Place.Neighbourhood,
			Street:        r.Place.Street,
			City:          r.Place.City,
			Postcode:      r.Place.Postcode,
			Country:       r.Place.Country,
		},
	}
	if r.CapturedAt != nil {
		attrs.CapturedAt = *r.CapturedAt
	}
	if r.Geo != nil {
		attrs.Geo = &domdoc.GeoPoint{Lat: r.Geo.Lat, Lon: r.Geo.Lon}
	}
	return attrs
}

// DocumentResponse is the public view of a document. The embedding is never exposed.
type DocumentResponse struct {
	ID          string     `json:"id"`
	ShortID     string     `json:"short_id"`
	Name        string     `json:"name"`
	Path        string     `json:"path,omitempty"`
	AltPath     string     `json:"alt_path,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	SizeBytes   int64      `json:"size_bytes"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	Geo         *geoJSON   `json:"geo,omitempty"`
	Place       placeJSON  `json:"place"`
	Objects     []string   `json:"objects"`
	Description string     `json:"description,omitempty"`
	Processed   bool       `json:"processed"`
	NeedsSync   bool       `json:"needs_sync"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func documentToResponse(d *domdoc.Document) DocumentResponse {
	a := d.Attributes()
	resp := DocumentResponse{
		ID:        d.ID(),
		ShortID:   d.ShortID(),
		Name:      a.Name,
		Path:      a.Path,
		AltPath:   a.AltPath,
		Width:     a.Width,
		Height:    a.Height,
		SizeBytes: a.SizeBytes,
		Place: placeJSON{
			Neighbourhood: a.Place.Neighbourhood,
			Street:        a.Place.Street,
			City:          a.Place.City,
			Postcode:      a.Place.Postcode,
			Country:       a.Place.Country,
		},
		Objects:     nonNil(d.Objects()),
		Description: d.Description(),
		Processed:   d.Processed(),
		NeedsSync:   d.NeedsSync(),
	}
	if !a.CapturedAt.IsZero() {
		t := a.CapturedAt
		resp.CapturedAt = &t
	}
	if a.Geo != nil {
		resp.Geo = &geoJSON{Lat: a.Geo.Lat, Lon: a.Geo.Lon}
	}
	if at := d.ProcessedAt(); !at.IsZero() {
		resp.ProcessedAt = &at
	}
	return resp
}

// DocumentListResponse is a cursor page of documents.
type DocumentListResponse struct {
	Items      []DocumentResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

type filtersJSON struct {
	Place          string     `json:"place,omitempty"`
	Objects        []string   `json:"objects,omitempty"`
	CapturedAfter  *time.Time `json:"captured_after,omitempty"`
	CapturedBefore *time.Time `json:"captured_before,omitempty"`
	MinWidth       *int       `json:"min_width,omitempty"`
	MaxWidth       *int       `json:"max_width,omitempty"`
	MinHeight      *int       `json:"min_height,omitempty"`
	MaxHeight      *int       `json:"max_height,omitempty"`
	Near           *nearJSON  `json:"near,omitempty"`
}

type nearJSON struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radius_m"`
}

func (f *filtersJSON) criteria() filter.Criteria {
	if f == nil {
		return filter.Criteria{}
	}
	var near *filter.Near
	if f.Near != nil {
		near = &filter.Near{Lat: f.Near.Lat, Lon: f.Near.Lon, RadiusMeters: f.Near.RadiusMeters}
	}
	return filter.Criteria{
		Near:           near,
		Place:          f.Place,
		Objects:        f.Objects,
		CapturedAfter:  f.CapturedAfter,
		CapturedBefore: f.CapturedBefore,
		MinWidth:       f.MinWidth,
		MaxWidth:       f.MaxWidth,
		MinHeight:      f.MinHeight,
		MaxHeight:      f.MaxHeight,
	}
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query     string       `json:"query"`
	Mode      string       `json:"mode,omitempty"`
	Limit     *int         `json:"limit,omitempty"`
	Threshold float64      `json:"threshold,omitempty"`
	Filters   *filtersJSON `json:"filters,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	ID           string           `json:"id"`
	Score        float64          `json:"score"`
	LexicalScore *float64         `json:"lexical_score,omitempty"`
	VectorScore  *float64         `json:"vector_score,omitempty"`
	Document     DocumentResponse `json:"document"`
}

// SearchResponse is the ranked result list.
type SearchResponse struct {
	Items []SearchHit `json:"items"`
	Total int         `json:"total"`
}

func searchToResponse(results []result.Result) SearchResponse {
	items := make([]SearchHit, len(results))
	for i := range results {
		r := &results[i]
		doc := r.Document()
		items[i] = SearchHit{
			ID:           r.ID(),
			Score:        r.Score(),
			LexicalScore: r.LexicalScore(),
			VectorScore:  r.VectorScore(),
			Document:     documentToResponse(&doc),
		}
	}
	return SearchResponse{Items: items, Total: len(items)}
}

// SuggestResponse lists document names for query completion.
type SuggestResponse struct {
	Items []string `json:"items"`
}

// BatchIngestRequest is the body of POST /documents/batch.
type BatchIngestRequest struct {
	Items []IngestRequest `json:"items"`
}

// BatchDeleteRequest is the body of DELETE /documents/batch.
type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BatchItemResult is the outcome of one batch item.
type BatchItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchResponse summarizes a batch call.
type BatchResponse struct {
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
}

func batchToResponse(results []dombatch.Result) BatchResponse {
	resp := BatchResponse{Items: make([]BatchItemResult, len(results))}
	for i, r := range results {
		item := BatchItemResult{ID: r.ID(), Status: string(r.Status())}
		switch r.Status() {
		case dombatch.StatusSucceeded:
			resp.Succeeded++
		case dombatch.StatusSkipped:
			resp.Skipped++
		case dombatch.StatusFailed:
			resp.Failed++
			if r.Err() != nil {
				item.Error = r.Err().Error()
			}
		}
		resp.Items[i] = item
	}
	return resp
}

// PipelineRequest overrides the configured run parameters. Zero keeps the default.
type PipelineRequest struct {
	BatchSize    int `json:"batch_size,omitempty"`
	MaxDocuments int `json:"max_documents,omitempty"`
	Concurrency  int `json:"concurrency,omitempty"`
}

func (p PipelineRequest) params() pipeline.Params {
	return pipeline.Params{BatchSize: p.BatchSize, MaxDocuments: p.MaxDocuments, Concurrency: p.Concurrency}
}

type failureJSON struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PipelineResponse is the tally of a pipeline run.
type PipelineResponse struct {
	RunID      string        `json:"run_id"`
	Succeeded  []string      `json:"succeeded"`
	Failed     []failureJSON `json:"failed"`
	Skipped    []string      `json:"skipped"`
	Canceled   bool          `json:"canceled"`
	Batches    int           `json:"batches"`
	DurationMs int64         `json:"duration_ms"`
}

func pipelineToResponse(r *pipeline.Report) PipelineResponse {
	failed := make([]failureJSON, len(r.Failed))
	for i, f := range r.Failed {
		failed[i] = failureJSON{ID: f.ID, Reason: f.Reason}
	}
	return PipelineResponse{
		RunID:      r.RunID,
		Succeeded:  nonNil(r.Succeeded),
		Failed:     failed,
		Skipped:    nonNil(r.Skipped),
		Canceled:   r.Canceled,
		Batches:    r.Batches,
		DurationMs: r.Duration.Milliseconds(),
	}
}

// ReconcileResponse is the outcome of a reconcile pass.
type ReconcileResponse struct {
	RunID             string   `json:"run_id"`
	Checked           int      `json:"checked"`
	Upserted          int      `json:"upserted"`
	Reprocessed       int      `json:"reprocessed"`
	OrphansDeleted    int      `json:"orphans_deleted"`
	Collisions        int      `json:"collisions"`
	Failed            int      `json:"failed"`
	Repaired          int      `json:"repaired"`
	Unrepaired        int      `json:"unrepaired"`
	Truncated         bool     `json:"truncated"`
	AwaitingEmbedding int      `json:"awaiting_embedding"`
	Problems          []string `json:"problems"`
}

func reconcileToResponse(r *reconcile.Report) ReconcileResponse {
	return ReconcileResponse{
		RunID:             r.RunID,
		Checked:           r.Checked,
		Upserted:          r.Upserted,
		Reprocessed:       r.Reprocessed,
		OrphansDeleted:    r.OrphansDeleted,
		Collisions:        r.Collisions,
		Failed:            r.Failed,
		Repaired:          r.Repaired(),
		Unrepaired:        r.Unrepaired(),
		Truncated:         r.Truncated,
		AwaitingEmbedding: r.AwaitingEmbedding,
		Problems:          nonNil(r.Problems),
	}
}

// StatsResponse summarizes corpus and index state.
type StatsResponse struct {
	Total         int     `json:"total"`
	Processed     int     `json:"processed"`
	WithEmbedding int     `json:"with_embedding"`
	Pending       int     `json:"pending"`
	NeedsSync     int     `json:"needs_sync"`
	Vectors       int     `json:"vectors"`
	Synced        bool    `json:"synced"`
	Completeness  float64 `json:"completeness"`
}

func statsToResponse(s stats.Stats) StatsResponse {
	return StatsResponse{
		Total:         s.Total,
		Processed:     s.Processed,
		WithEmbedding: s.WithEmbedding,
		Pending:       s.Pending,
		NeedsSync:     s.NeedsSync,
		Vectors:       s.Vectors,
		Synced:        s.Synced,
		Completeness:  s.Completeness,
	}
}

// SyncResponse combines the three stages of a full sync.
type SyncResponse struct {
	Pipeline  PipelineResponse  `json:"pipeline"`
	Reconcile ReconcileResponse `json:"reconcile"`
	Stats     StatsResponse     `json:"stats"`
}

func syncToResponse(r *maintenance.SyncReport) SyncResponse {
	return SyncResponse{
		Pipeline:  pipelineToResponse(&r.Pipeline),
		Reconcile: reconcileToResponse(&r.Reconcile),
		Stats:     statsToResponse(r.Stats),
	}
}

// HealthResponse reports component availability.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
