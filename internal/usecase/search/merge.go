package search

import (
	"cmp"
	"slices"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// candidate is one document seen by at least one lookup.
type candidate struct {
	id      string
	lexical *float64
	vector  *float64
}

// normalizeLexical divides every native score by the best one so the top hit scores 1.
func normalizeLexical(hits []domdoc.Hit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	var best float64
	for _, h := range hits {
		best = max(best, h.Score)
	}
	for _, h := range hits {
		s := 1.0
		if best > 0 {
			s = h.Score / best
		}
		out[h.ID] = s
	}
	return out
}

// vectorScores keys cosine scores by document id, keeping the best per document.
func vectorScores(hits []domvec.Hit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if h.Payload.DocID == "" {
			continue
		}
		if prev, ok := out[h.Payload.DocID]; !ok || h.Score > prev {
			out[h.Payload.DocID] = h.Score
		}
	}
	return out
}

// mergeCandidates unions both sides by document id in a deterministic order.
func mergeCandidates(lexical, vector map[string]float64) []candidate {
	merged := make(map[string]*candidate, len(lexical)+len(vector))
	for id, s := range lexical {
		merged[id] = &candidate{id: id, lexical: &s}
	}
	for id, s := range vector {
		if c, ok := merged[id]; ok {
			c.vector = &s
			continue
		}
		merged[id] = &candidate{id: id, vector: &s}
	}

	out := make([]candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b candidate) int { return cmp.Compare(a.id, b.id) })
	return out
}

// combine blends the sub-scores. A side that did not match contributes nothing
// and the other sub-score is used as is.
func (w Weights) combine(c candidate) float64 {
	switch {
	case c.lexical != nil && c.vector != nil:
		return w.Vector*(*c.vector) + w.Text*(*c.lexical)
	case c.vector != nil:
		return *c.vector
	case c.lexical != nil:
		return *c.lexical
	}
	return 0
}
