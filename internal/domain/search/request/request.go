package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	"github.com/kailas-cloud/imgdex/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 200
)

// Request is a validated search query.
type Request struct {
	text       string
	searchMode mode.Mode
	limit      int
	threshold  float64
	criteria   filter.Criteria
	filters    filter.Expression
}

// New validates search parameters. Every rejection wraps domain.ErrInvalidQuery.
// An empty mode means hybrid; a limit above MaxLimit is clamped.
func New(text string, m mode.Mode, limit int, threshold float64, criteria filter.Criteria) (Request, error) {
	text = strings.TrimSpace(text)
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidQuery, m)
	}
	if text == "" && m.NeedsEmbedding() {
		return Request{}, fmt.Errorf("%w: text is required for %s search", domain.ErrInvalidQuery, m)
	}
	if len(text) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: text too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if limit <= 0 {
		return Request{}, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidQuery, limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if threshold < 0 || threshold > 1 {
		return Request{}, fmt.Errorf("%w: threshold must be between 0 and 1", domain.ErrInvalidQuery)
	}
	if err := criteria.Validate(); err != nil {
		return Request{}, err
	}
	expr, err := criteria.Expression()
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	return Request{
		text:       text,
		searchMode: m,
		limit:      limit,
		threshold:  threshold,
		criteria:   criteria,
		filters:    expr,
	}, nil
}

// Text returns the trimmed query text. Empty only for filter-only lexical browsing.
func (r *Request) Text() string { return r.text }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Threshold returns the minimum cosine similarity for vector matches.
func (r *Request) Threshold() float64 { return r.threshold }

// Criteria returns the structured filters for post-filtering.
func (r *Request) Criteria() filter.Criteria { return r.criteria }

// Filters returns the native pushdown form of the criteria.
func (r *Request) Filters() filter.Expression { return r.filters }
