package filter

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/imgdex/internal/domain"
)

// FieldProcessed is the lifecycle tag of the document index. It is never exposed to search callers.
const FieldProcessed = "processed"

// MaxConditionsPerGroup caps each of must, should and must_not.
const MaxConditionsPerGroup = 32

var (
	tagFields     = map[string]bool{FieldPlace: true, FieldObjects: true, FieldProcessed: true}
	numericFields = map[string]bool{FieldCapturedAt: true, FieldWidth: true, FieldHeight: true}
)

// Expression is the backend-neutral form of a filter.
// All must conditions hold, at least one should condition holds when any are given,
// and no must_not condition holds.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression groups conditions into an Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	groups := []struct {
		name  string
		conds []Condition
	}{{"must", must}, {"should", should}, {"must_not", mustNot}}
	for _, g := range groups {
		if len(g.conds) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("%w: %d %s conditions, at most %d allowed",
				domain.ErrInvalidQuery, len(g.conds), g.name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

func (e Expression) Must() []Condition    { return e.must }
func (e Expression) Should() []Condition  { return e.should }
func (e Expression) MustNot() []Condition { return e.mustNot }

func (e Expression) IsEmpty() bool {
	return len(e.must)+len(e.should)+len(e.mustNot) == 0
}

// Condition constrains one indexed field. Tag fields take an exact value,
// numeric fields take a Range.
type Condition struct {
	key   string
	match string
	rng   *Range
}

// NewMatch builds an exact, case-insensitive match on a tag field.
func NewMatch(key, value string) (Condition, error) {
	if !tagFields[key] {
		return Condition{}, fmt.Errorf("%w: %q is not a tag field", domain.ErrInvalidQuery, key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Condition{}, fmt.Errorf("%w: empty value for %s", domain.ErrInvalidQuery, key)
	}
	return Condition{key: key, match: value}, nil
}

// NewRange builds a range condition on a numeric field.
// Capture dates are compared as unix seconds.
func NewRange(key string, r Range) (Condition, error) {
	if !numericFields[key] {
		return Condition{}, fmt.Errorf("%w: %q is not a numeric field", domain.ErrInvalidQuery, key)
	}
	return Condition{key: key, rng: &r}, nil
}

func (c Condition) Key() string   { return c.key }
func (c Condition) Match() string { return c.match }
func (c Condition) Range() *Range { return c.rng }
func (c Condition) IsMatch() bool { return c.match != "" }
func (c Condition) IsRange() bool { return c.rng != nil }

// Bound is one end of a Range.
type Bound struct {
	Value     float64
	Exclusive bool
}

// Inclusive returns a closed bound, or nil for a nil value.
func Inclusive(v *float64) *Bound {
	if v == nil {
		return nil
	}
	return &Bound{Value: *v}
}

// Exclusive returns an open bound, or nil for a nil value.
func Exclusive(v *float64) *Bound {
	if v == nil {
		return nil
	}
	return &Bound{Value: *v, Exclusive: true}
}

// Range is an interval over a numeric field. A nil end is unbounded.
type Range struct {
	min *Bound
	max *Bound
}

// NewRangeFilter builds a Range. It rejects fully unbounded and empty intervals.
func NewRangeFilter(minBound, maxBound *Bound) (Range, error) {
	if minBound == nil && maxBound == nil {
		return Range{}, fmt.Errorf("%w: range needs a lower or upper bound", domain.ErrInvalidQuery)
	}
	if minBound != nil && maxBound != nil {
		empty := minBound.Value > maxBound.Value ||
			(minBound.Value == maxBound.Value && (minBound.Exclusive || maxBound.Exclusive))
		if empty {
			return Range{}, fmt.Errorf("%w: range [%g, %g] is empty", domain.ErrInvalidQuery, minBound.Value, maxBound.Value)
		}
	}
	return Range{min: minBound, max: maxBound}, nil
}

func (r Range) Min() *Bound { return r.min }
func (r Range) Max() *Bound { return r.max }

func (r Range) contains(v float64) bool {
	if b := r.min; b != nil && (v < b.Value || (b.Exclusive && v == b.Value)) {
		return false
	}
	if b := r.max; b != nil && (v > b.Value || (b.Exclusive && v == b.Value)) {
		return false
	}
	return true
}
