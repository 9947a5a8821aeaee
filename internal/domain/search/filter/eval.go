package filter

// Eval reports whether s satisfies the expression. Conditions on unknown keys never match.
// Backends without native filtering use it to apply the same semantics in process.
func (e Expression) Eval(s Subject) bool {
	for _, c := range e.must {
		if !c.eval(s) {
			return false
		}
	}
	if len(e.should) > 0 {
		matched := false
		for _, c := range e.should {
			if c.eval(s) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.eval(s) {
			return false
		}
	}
	return true
}

func (c Condition) eval(s Subject) bool {
	if c.IsMatch() {
		switch c.key {
		case FieldObjects:
			return containsFold(s.Objects, c.match)
		case FieldPlace:
			return containsFold(s.Place, c.match)
		}
		return false
	}
	if c.rng == nil {
		return false
	}

	var v float64
	switch c.key {
	case FieldCapturedAt:
		if s.CapturedAt.IsZero() {
			return false
		}
		v = float64(s.CapturedAt.Unix())
	case FieldWidth:
		v = float64(s.Width)
	case FieldHeight:
		v = float64(s.Height)
	default:
		return false
	}
	return c.rng.contains(v)
}
