package vector

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

const (
	keyPrefix = "imgdex:vec:"
	indexName = "imgdex:vec:idx"

	fieldVector  = "vector"
	fieldShortID = "short_id"
	fieldDocID   = "doc_id"
	fieldVersion = "version"

	tagSeparator = "|"
)

// Options configures the HNSW index.
type Options struct {
	Dimensions     int
	M              int
	EFConstruction int
}

func (o Options) withDefaults() Options {
	if o.M <= 0 {
		o.M = 16
	}
	if o.EFConstruction <= 0 {
		o.EFConstruction = 200
	}
	return o
}

func pointKey(id uint64) string { return keyPrefix + strconv.FormatUint(id, 10) }

func idFromKey(key string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(key, keyPrefix), 10, 64)
	return id, err == nil
}

func buildIndex(o Options) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName).
		OnHash().
		Prefix(keyPrefix).
		VectorHNSW(fieldVector, o.Dimensions, o.M, o.EFConstruction).
		Tag(fieldShortID).
		TagList(filter.FieldObjects, tagSeparator).
		TagList(filter.FieldPlace, tagSeparator).
		Numeric(filter.FieldCapturedAt).
		Numeric(filter.FieldWidth).
		Numeric(filter.FieldHeight).
		Numeric(fieldVersion).
		Build()
}
