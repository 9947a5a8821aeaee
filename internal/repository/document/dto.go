package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

// docJSON is the stored RedisJSON shape. Flags are strings so they can be TAG-indexed.
type docJSON struct {
	ID           string     `json:"id"`
	ShortID      string     `json:"short_id"`
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	AltPath      string     `json:"alt_path,omitempty"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	SizeBytes    int64      `json:"size_bytes"`
	CapturedAt   *int64     `json:"captured_at,omitempty"`
	Lat          *float64   `json:"lat,omitempty"`
	Lon          *float64   `json:"lon,omitempty"`
	Place        placeJSON  `json:"place"`
	PlaceNames   []string   `json:"place_names"`
	Objects      []string   `json:"objects"`
	Description  string     `json:"description"`
	Embedding    []float32  `json:"embedding,omitempty"`
	Processed    string     `json:"processed"`
	NeedsSync    string     `json:"needs_sync"`
	HasEmbedding string     `json:"has_embedding"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type placeJSON struct {
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Street        string `json:"street,omitempty"`
	City          string `json:"city,omitempty"`
	Postcode      string `json:"postcode,omitempty"`
	Country       string `json:"country,omitempty"`
}

func toJSON(doc *domdoc.Document) docJSON {
	a := doc.Attributes()
	st := doc.State()

	out := docJSON{
		ID:           doc.ID(),
		ShortID:      doc.ShortID(),
		Name:         a.Name,
		Path:         a.Path,
		AltPath:      a.AltPath,
		Width:        a.Width,
		Height:       a.Height,
		SizeBytes:    a.SizeBytes,
		Place:        placeJSON(a.Place),
		PlaceNames:   a.Place.Parts(),
		Objects:      doc.Objects(),
		Description:  st.Description,
		Embedding:    st.Embedding,
		Processed:    strconv.FormatBool(st.Processed),
		NeedsSync:    strconv.FormatBool(st.NeedsSync),
		HasEmbedding: strconv.FormatBool(doc.HasEmbedding()),
	}
	if out.Objects == nil {
		out.Objects = []string{}
	}
	if !a.CapturedAt.IsZero() {
		ts := a.CapturedAt.Unix()
		out.CapturedAt = &ts
	}
	if a.Geo != nil {
		out.Lat, out.Lon = &a.Geo.Lat, &a.Geo.Lon
	}
	if !st.ProcessedAt.IsZero() {
		at := st.ProcessedAt.UTC()
		out.ProcessedAt = &at
	}
	return out
}

func (d *docJSON) toDomain() domdoc.Document {
	attrs := domdoc.Attributes{
		Name:      d.Name,
		Path:      d.Path,
		AltPath:   d.AltPath,
		Width:     d.Width,
		Height:    d.Height,
		SizeBytes: d.SizeBytes,
		Place:     domdoc.Place(d.Place),
	}
	if d.CapturedAt != nil {
		attrs.CapturedAt = time.Unix(*d.CapturedAt, 0).UTC()
	}
	if d.Lat != nil && d.Lon != nil {
		attrs.Geo = &domdoc.GeoPoint{Lat: *d.Lat, Lon: *d.Lon}
	}

	st := domdoc.State{
		Description: d.Description,
		Embedding:   d.Embedding,
		Processed:   d.Processed == "true",
		NeedsSync:   d.NeedsSync == "true",
	}
	if d.ProcessedAt != nil {
		st.ProcessedAt = *d.ProcessedAt
	}
	return domdoc.Reconstruct(d.ID, attrs, d.Objects, st)
}

func marshalDoc(doc *domdoc.Document) ([]byte, error) {
	data, err := json.Marshal(toJSON(doc))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// unmarshalDoc accepts both a bare object and the single-element array JSON.GET returns for "$".
func unmarshalDoc(raw []byte) (domdoc.Document, error) {
	if len(raw) > 0 && raw[0] == '[' {
		var arr []docJSON
		if err := json.Unmarshal(raw, &arr); err != nil {
			return domdoc.Document{}, fmt.Errorf("unmarshal document: %w", err)
		}
		if len(arr) == 0 {
			return domdoc.Document{}, fmt.Errorf("unmarshal document: empty result")
		}
		return arr[0].toDomain(), nil
	}
	var d docJSON
	if err := json.Unmarshal(raw, &d); err != nil {
		return domdoc.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return d.toDomain(), nil
}
