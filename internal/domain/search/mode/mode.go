package mode

// Mode is the search strategy. The set is closed.
type Mode string

// Search mode constants.
const (
	// Lexical ranks by full-text relevance over name, description, objects and place.
	Lexical Mode = "lexical"
	// Vector ranks by cosine similarity of the embedded query.
	Vector Mode = "vector"
	// Hybrid blends both with configurable weights.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Lexical || m == Vector || m == Hybrid
}

// NeedsEmbedding reports whether the mode runs a vector lookup.
func (m Mode) NeedsEmbedding() bool { return m == Vector || m == Hybrid }

// NeedsText reports whether the mode runs a lexical lookup.
func (m Mode) NeedsText() bool { return m == Lexical || m == Hybrid }
