// Package vector holds the vector index value types and similarity math.
package vector

import "time"

// Payload is the denormalized document data stored next to a vector.
// It lets the index filter natively and lets the synchronizer detect collisions.
type Payload struct {
	ShortID    string
	DocID      string
	Objects    []string
	Place      []string
	CapturedAt time.Time
	Width      int
	Height     int
	Version    int
}

// Point is one entry of the vector index.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Ref identifies a stored point without its vector, as returned by listings.
type Ref struct {
	ID      uint64
	ShortID string
	DocID   string
}

// Hit is a nearest-neighbour match. Score is cosine similarity.
type Hit struct {
	ID      uint64
	Score   float64
	Payload Payload
}
