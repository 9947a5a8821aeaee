package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/geo"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	"github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// MaxNameLength bounds the stored file name.
const MaxNameLength = 1024

// GeoPoint is an optional capture location.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Attributes are the file and capture metadata supplied at ingest.
type Attributes struct {
	Name       string
	Path       string
	AltPath    string
	Width      int
	Height     int
	SizeBytes  int64
	CapturedAt time.Time
	Geo        *GeoPoint
	Place      Place
}

// State is the processing state of a document, used for storage hydration.
type State struct {
	Description string
	Embedding   []float32
	Processed   bool
	NeedsSync   bool
	ProcessedAt time.Time
}

// Document is the image document aggregate.
// Invariant: processed implies a stored embedding (and, in the stores, a mirrored point).
type Document struct {
	id          string
	shortID     string
	attrs       Attributes
	objects     []string
	description string
	embedding   []float32
	processed   bool
	needsSync   bool
	processedAt time.Time
}

// New validates metadata and creates an unprocessed Document keyed by the content hash of content.
func New(content []byte, attrs Attributes, objects []string) (Document, error) {
	if len(content) == 0 {
		return Document{}, fmt.Errorf("%w: content is empty", domain.ErrValidation)
	}
	if err := validateAttributes(attrs); err != nil {
		return Document{}, err
	}

	id := ContentID(content)
	return Document{
		id:      id,
		shortID: ShortID(id),
		attrs:   attrs,
		objects: normalizeObjects(objects),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id string, attrs Attributes, objects []string, st State) Document {
	return Document{
		id:          id,
		shortID:     ShortID(id),
		attrs:       attrs,
		objects:     objects,
		description: st.Description,
		embedding:   st.Embedding,
		processed:   st.Processed,
		needsSync:   st.NeedsSync,
		processedAt: st.ProcessedAt,
	}
}

func validateAttributes(a Attributes) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(a.Name) > MaxNameLength {
		return fmt.Errorf("%w: name too long (max %d)", domain.ErrValidation, MaxNameLength)
	}
	if a.Width < 0 || a.Height < 0 {
		return fmt.Errorf("%w: dimensions must be non-negative", domain.ErrValidation)
	}
	if a.SizeBytes < 0 {
		return fmt.Errorf("%w: size must be non-negative", domain.ErrValidation)
	}
	if g := a.Geo; g != nil {
		if !geo.ValidateCoordinates(g.Lat, g.Lon) {
			return fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
		}
	}
	return nil
}

// normalizeObjects lowercases, trims and deduplicates detector labels, keeping first-seen order.
func normalizeObjects(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// ID returns the content hash identifier.
func (d *Document) ID() string { return d.id }

// ShortID returns the compact identifier derived from ID.
func (d *Document) ShortID() string { return d.shortID }

// PointID returns the vector index key of this document.
func (d *Document) PointID() uint64 { return PointID(d.shortID) }

// Attributes returns the file and capture metadata.
func (d *Document) Attributes() Attributes { return d.attrs }

// Name returns the file name.
func (d *Document) Name() string { return d.attrs.Name }

// CapturedAt returns the capture timestamp (zero when unknown).
func (d *Document) CapturedAt() time.Time { return d.attrs.CapturedAt }

// Objects returns the detected objects and people.
func (d *Document) Objects() []string { return d.objects }

// Description returns the generated description, empty until processed.
func (d *Document) Description() string { return d.description }

// Embedding returns the stored embedding, nil until processed.
func (d *Document) Embedding() []float32 { return d.embedding }

// HasEmbedding reports whether an embedding is stored.
func (d *Document) HasEmbedding() bool { return len(d.embedding) > 0 }

// Processed reports whether embedding and point upsert both succeeded.
func (d *Document) Processed() bool { return d.processed }

// NeedsSync reports whether the embedding may be missing from the vector index.
func (d *Document) NeedsSync() bool { return d.needsSync }

// ProcessedAt returns the time of the last successful processing.
func (d *Document) ProcessedAt() time.Time { return d.processedAt }

// State returns the processing state for persistence.
func (d *Document) State() State {
	return State{
		Description: d.description,
		Embedding:   d.embedding,
		Processed:   d.processed,
		NeedsSync:   d.needsSync,
		ProcessedAt: d.processedAt,
	}
}

// WithEmbedding returns a copy carrying a fresh description and embedding.
// The copy is not processed and is flagged for sync until its point is written.
func (d *Document) WithEmbedding(description string, embedding []float32) Document {
	c := *d
	c.description = description
	c.embedding = embedding
	c.processed = false
	c.needsSync = true
	return c
}

// MarkProcessed returns a processed copy. It refuses documents without an embedding.
func (d *Document) MarkProcessed(at time.Time) (Document, error) {
	if !d.HasEmbedding() {
		return Document{}, fmt.Errorf("%w: document %s has no embedding", domain.ErrConsistency, d.shortID)
	}
	c := *d
	c.processed = true
	c.needsSync = false
	c.processedAt = at
	return c, nil
}

// Point builds the vector index entry mirroring this document's embedding.
func (d *Document) Point() (vector.Point, error) {
	if !d.HasEmbedding() {
		return vector.Point{}, fmt.Errorf("%w: document %s has no embedding", domain.ErrValidation, d.shortID)
	}
	return vector.Point{
		ID:     d.PointID(),
		Vector: d.embedding,
		Payload: vector.Payload{
			ShortID:    d.shortID,
			DocID:      d.id,
			Objects:    d.objects,
			Place:      d.attrs.Place.Parts(),
			CapturedAt: d.attrs.CapturedAt,
			Width:      d.attrs.Width,
			Height:     d.attrs.Height,
			Version:    PointIDVersion,
		},
	}, nil
}

// Reset returns an unprocessed copy without description or embedding, ready for the pipeline.
func (d *Document) Reset() Document {
	c := *d
	c.description = ""
	c.embedding = nil
	c.processed = false
	c.needsSync = false
	c.processedAt = time.Time{}
	return c
}

// Subject projects the fields structured filters evaluate.
func (d *Document) Subject() filter.Subject {
	s := filter.Subject{
		Place:      d.attrs.Place.Parts(),
		Objects:    d.objects,
		CapturedAt: d.attrs.CapturedAt,
		Width:      d.attrs.Width,
		Height:     d.attrs.Height,
	}
	if g := d.attrs.Geo; g != nil {
		s.HasGeo, s.Lat, s.Lon = true, g.Lat, g.Lon
	}
	return s
}
