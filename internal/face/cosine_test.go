package face

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"empty", nil, nil, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMatchPercentage(t *testing.T) {
	// Identical embeddings score a full match.
	a := []float32{0.5, 0.25, 0.1}
	if got := MatchPercentage(a, a); got != 100.0 {
		t.Errorf("identical embeddings = %v, want 100", got)
	}

	// Orthogonal embeddings score zero.
	if got := MatchPercentage([]float32{1, 0}, []float32{0, 1}); got != 0.0 {
		t.Errorf("orthogonal embeddings = %v, want 0", got)
	}

	// Negative similarity clamps to zero rather than going negative.
	if got := MatchPercentage([]float32{1, 0}, []float32{-1, 0}); got != 0.0 {
		t.Errorf("opposite embeddings = %v, want 0", got)
	}
}

func TestMatchPercentageRounding(t *testing.T) {
	// cos(angle) chosen so the raw percentage has more than 2 decimals.
	a := []float32{1, 0}
	b := []float32{1, 0.1}
	got := MatchPercentage(a, b)
	if got != math.Round(got*100)/100 {
		t.Errorf("expected 2-decimal rounding, got %v", got)
	}
	if got <= 99 || got >= 100 {
		t.Errorf("expected score just under 100, got %v", got)
	}
}

func TestMatchPercentageDeterministic(t *testing.T) {
	a := []float32{0.12, -0.4, 0.9, 0.33}
	b := []float32{0.11, -0.38, 0.88, 0.35}
	first := MatchPercentage(a, b)
	for range 10 {
		if got := MatchPercentage(a, b); got != first {
			t.Fatalf("MatchPercentage not deterministic: %v != %v", got, first)
		}
	}
}
