package mode

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Mode{Lexical, Vector, Hybrid}
	for _, m := range valid {
		if !m.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", m)
		}
	}

	invalid := []Mode{"", "semantic", "keyword", "HYBRID"}
	for _, m := range invalid {
		if m.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", m)
		}
	}
}

func TestLookups(t *testing.T) {
	tests := []struct {
		m          Mode
		text, embd bool
	}{
		{Lexical, true, false},
		{Vector, false, true},
		{Hybrid, true, true},
	}
	for _, tt := range tests {
		if tt.m.NeedsText() != tt.text {
			t.Errorf("%q.NeedsText() = %v", tt.m, tt.m.NeedsText())
		}
		if tt.m.NeedsEmbedding() != tt.embd {
			t.Errorf("%q.NeedsEmbedding() = %v", tt.m, tt.m.NeedsEmbedding())
		}
	}
}
