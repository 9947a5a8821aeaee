package document

// Counts summarizes the document store for stats and sync checks.
type Counts struct {
	Total         int
	Processed     int
	WithEmbedding int
	NeedsSync     int
}

// Hit is a lexical match: a document id and its native relevance score.
type Hit struct {
	ID    string
	Score float64
}
