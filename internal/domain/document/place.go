package document

import "strings"

// Place holds reverse-geocoded place names, any of which may be empty.
type Place struct {
	Neighbourhood string
	Street        string
	City          string
	Postcode      string
	Country       string
}

// Parts returns the non-empty place names from most to least specific.
func (p Place) Parts() []string {
	parts := make([]string, 0, 5)
	for _, s := range []string{p.Neighbourhood, p.Street, p.City, p.Postcode, p.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// IsZero reports whether no place name is set.
func (p Place) IsZero() bool { return len(p.Parts()) == 0 }

// String joins the place names for prompts and logs.
func (p Place) String() string { return strings.Join(p.Parts(), ", ") }
