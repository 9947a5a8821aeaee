package document

import (
	"strings"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

const (
	keyPrefix = "imgdex:doc:"
	indexName = "imgdex:doc:idx"
)

// textFields are searched by lexical queries.
var textFields = []string{"name", "description", "objects_text", "place_text"}

func docKey(id string) string { return keyPrefix + id }

func idFromKey(key string) string { return strings.TrimPrefix(key, keyPrefix) }

// buildIndex declares the JSON index over stored documents.
// Objects and place names are indexed twice: TEXT for relevance, TAG for exact filters.
func buildIndex() *db.IndexDefinition {
	return db.NewIndex(indexName).
		OnJSON().
		Prefix(keyPrefix).
		TagAs("$.id", "id").Sortable().
		TextAs("$.name", "name").Sortable().
		TextAs("$.description", "description").
		TextAs("$.objects[*]", "objects_text").
		TextAs("$.place_names[*]", "place_text").
		TagAs("$.objects[*]", filter.FieldObjects).
		TagAs("$.place_names[*]", filter.FieldPlace).
		TagAs("$.processed", "processed").
		TagAs("$.needs_sync", "needs_sync").
		TagAs("$.has_embedding", "has_embedding").
		NumericAs("$.captured_at", filter.FieldCapturedAt).Sortable().
		NumericAs("$.width", filter.FieldWidth).
		NumericAs("$.height", filter.FieldHeight).
		MustBuild()
}
