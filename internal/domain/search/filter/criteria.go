package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/geo"
)

// Indexed field names shared by the document store and the vector index.
const (
	FieldPlace      = "place"
	FieldObjects    = "objects"
	FieldCapturedAt = "captured_at"
	FieldWidth      = "width"
	FieldHeight     = "height"
)

// Criteria are the structured filters of a search query. Zero values mean "no constraint".
type Criteria struct {
	Place          string
	Objects        []string
	CapturedAfter  *time.Time
	CapturedBefore *time.Time
	MinWidth       *int
	MaxWidth       *int
	MinHeight      *int
	MaxHeight      *int
	// Near keeps documents captured within a radius. It is evaluated after retrieval only.
	Near *Near
}

// Near is a capture-location radius.
type Near struct {
	Lat          float64
	Lon          float64
	RadiusMeters float64
}

// Subject is the view of a document that criteria are evaluated against.
type Subject struct {
	Place      []string
	Objects    []string
	CapturedAt time.Time
	Width      int
	Height     int
	HasGeo     bool
	Lat        float64
	Lon        float64
}

// Validate rejects inverted ranges and negative bounds.
func (c Criteria) Validate() error {
	if c.CapturedAfter != nil && c.CapturedBefore != nil && c.CapturedAfter.After(*c.CapturedBefore) {
		return fmt.Errorf("%w: captured_after is later than captured_before", domain.ErrInvalidQuery)
	}
	if err := validateBounds("width", c.MinWidth, c.MaxWidth); err != nil {
		return err
	}
	if err := validateBounds("height", c.MinHeight, c.MaxHeight); err != nil {
		return err
	}
	if n := c.Near; n != nil {
		if !geo.ValidateCoordinates(n.Lat, n.Lon) {
			return fmt.Errorf("%w: near coordinates out of range", domain.ErrInvalidQuery)
		}
		if n.RadiusMeters <= 0 {
			return fmt.Errorf("%w: near radius must be positive", domain.ErrInvalidQuery)
		}
	}
	return nil
}

func validateBounds(name string, lo, hi *int) error {
	if lo != nil && *lo < 0 || hi != nil && *hi < 0 {
		return fmt.Errorf("%w: %s bounds must be non-negative", domain.ErrInvalidQuery, name)
	}
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("%w: min %s exceeds max %s", domain.ErrInvalidQuery, name, name)
	}
	return nil
}

// IsEmpty reports whether no constraint is set.
func (c Criteria) IsEmpty() bool {
	return c.Place == "" && len(c.Objects) == 0 &&
		c.CapturedAfter == nil && c.CapturedBefore == nil &&
		c.MinWidth == nil && c.MaxWidth == nil && c.MinHeight == nil && c.MaxHeight == nil && c.Near == nil
}

// Expression translates the criteria into must-conditions for native pushdown.
func (c Criteria) Expression() (Expression, error) {
	var must []Condition

	if c.Place != "" {
		cond, err := NewMatch(FieldPlace, strings.ToLower(c.Place))
		if err != nil {
			return Expression{}, err
		}
		must = append(must, cond)
	}
	for _, o := range c.Objects {
		if o = strings.ToLower(strings.TrimSpace(o)); o == "" {
			continue
		}
		cond, err := NewMatch(FieldObjects, o)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, cond)
	}

	ranges := []struct {
		key    string
		lo, hi *float64
	}{
		{FieldCapturedAt, unixPtr(c.CapturedAfter), unixPtr(c.CapturedBefore)},
		{FieldWidth, intPtr(c.MinWidth), intPtr(c.MaxWidth)},
		{FieldHeight, intPtr(c.MinHeight), intPtr(c.MaxHeight)},
	}
	for _, r := range ranges {
		if r.lo == nil && r.hi == nil {
			continue
		}
		rng, err := NewRangeFilter(Inclusive(r.lo), Inclusive(r.hi))
		if err != nil {
			return Expression{}, err
		}
		cond, err := NewRange(r.key, rng)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, cond)
	}

	return NewExpression(must, nil, nil)
}

// Matches evaluates the criteria against s. Text comparisons are case-insensitive.
func (c Criteria) Matches(s Subject) bool {
	if c.Place != "" && !containsFold(s.Place, c.Place) {
		return false
	}
	for _, o := range c.Objects {
		if o = strings.TrimSpace(o); o != "" && !containsFold(s.Objects, o) {
			return false
		}
	}
	if c.CapturedAfter != nil || c.CapturedBefore != nil {
		if s.CapturedAt.IsZero() {
			return false
		}
		if c.CapturedAfter != nil && s.CapturedAt.Before(*c.CapturedAfter) {
			return false
		}
		if c.CapturedBefore != nil && s.CapturedAt.After(*c.CapturedBefore) {
			return false
		}
	}
	if n := c.Near; n != nil {
		if !s.HasGeo || geo.Haversine(n.Lat, n.Lon, s.Lat, s.Lon) > n.RadiusMeters {
			return false
		}
	}
	return within(s.Width, c.MinWidth, c.MaxWidth) && within(s.Height, c.MinHeight, c.MaxHeight)
}

func containsFold(values []string, want string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, want) })
}

func within(v int, lo, hi *int) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func unixPtr(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	v := float64(t.Unix())
	return &v
}

func intPtr(i *int) *float64 {
	if i == nil {
		return nil
	}
	v := float64(*i)
	return &v
}
