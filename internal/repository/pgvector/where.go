package pgvector

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

// whereBuilder renders a filter expression as SQL with positional args.
type whereBuilder struct {
	args []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// build returns "" for an empty expression.
func (w *whereBuilder) build(expr filter.Expression) string {
	var parts []string
	for _, c := range expr.Must() {
		if s := w.condition(c); s != "" {
			parts = append(parts, s)
		}
	}
	if should := expr.Should(); len(should) > 0 {
		var ors []string
		for _, c := range should {
			if s := w.condition(c); s != "" {
				ors = append(ors, s)
			}
		}
		if len(ors) > 0 {
			parts = append(parts, "("+strings.Join(ors, " OR ")+")")
		}
	}
	for _, c := range expr.MustNot() {
		if s := w.condition(c); s != "" {
			parts = append(parts, "NOT "+s)
		}
	}
	return strings.Join(parts, " AND ")
}

func (w *whereBuilder) condition(c filter.Condition) string {
	if c.IsMatch() {
		return w.match(c.Key(), c.Match())
	}
	if c.IsRange() {
		return w.rng(c.Key(), c.Range())
	}
	return ""
}

func (w *whereBuilder) match(key, value string) string {
	switch key {
	case filter.FieldObjects:
		return fmt.Sprintf("(%s = ANY(objects))", w.arg(strings.ToLower(value)))
	case filter.FieldPlace:
		return fmt.Sprintf("(EXISTS (SELECT 1 FROM unnest(place) p WHERE lower(p) = %s))", w.arg(strings.ToLower(value)))
	}
	return ""
}

func (w *whereBuilder) rng(key string, r *filter.Range) string {
	col, ok := rangeColumns[key]
	if !ok {
		return ""
	}
	var parts []string
	add := func(b *filter.Bound, closed, open string) {
		if b == nil {
			return
		}
		op := closed
		if b.Exclusive {
			op = open
		}
		rhs := w.arg(b.Value)
		if key == filter.FieldCapturedAt {
			rhs = "to_timestamp(" + rhs + ")"
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", col, op, rhs))
	}
	add(r.Min(), ">=", ">")
	add(r.Max(), "<=", "<")
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

var rangeColumns = map[string]string{
	filter.FieldCapturedAt: "captured_at",
	filter.FieldWidth:      "width",
	filter.FieldHeight:     "height",
}
