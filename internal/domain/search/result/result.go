package result

import domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"

// Result is a single ranked search hit.
type Result struct {
	doc     domdoc.Document
	score   float64
	lexical *float64
	vector  *float64
}

// New creates a search result. A nil sub-score means that side did not match.
func New(doc domdoc.Document, score float64, lexical, vector *float64) Result {
	return Result{doc: doc, score: score, lexical: lexical, vector: vector}
}

// Document returns the matched document.
func (r *Result) Document() domdoc.Document { return r.doc }

// ID returns the document identifier.
func (r *Result) ID() string { return r.doc.ID() }

// Score returns the combined relevance in [0,1].
func (r *Result) Score() float64 { return r.score }

// LexicalScore returns the normalized lexical sub-score, nil when absent.
func (r *Result) LexicalScore() *float64 { return r.lexical }

// VectorScore returns the cosine sub-score, nil when absent.
func (r *Result) VectorScore() *float64 { return r.vector }
