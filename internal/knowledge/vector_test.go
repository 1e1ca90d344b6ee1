package knowledge

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	in := []float32{0.25, -1.5, 3.0e-8, 42}
	out := DecodeEmbedding(EncodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: expected %v, got %v", i, in[i], out[i])
		}
	}
	if DecodeEmbedding(nil) != nil {
		t.Error("expected nil for empty blob")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := CosineDistance([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestValidateVector(t *testing.T) {
	nan := float32(math.NaN())
	for _, v := range [][]float32{nil, {0, 0}, {1, nan}} {
		if err := validateVector(v); !errors.Is(err, ErrInvalidEmbedding) {
			t.Errorf("validateVector(%v): expected ErrInvalidEmbedding, got %v", v, err)
		}
	}
	if err := validateVector([]float32{0, 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDimensionGuard(t *testing.T) {
	var g dimensionGuard
	if err := g.admit([]float32{1, 2}); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := g.admit([]float32{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if g.get() != 2 {
		t.Errorf("expected 2, got %d", g.get())
	}
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{Record: testRecord("S9"), Distance: 0.5},
		{Record: testRecord("S2"), Distance: 0.1},
		{Record: testRecord("S5"), Distance: 0.5},
		{Record: testRecord("S1"), Distance: 0.5},
	}
	got := hitIDs(topHits(hits, 3))
	if !equalIDs(got, []string{"S2", "S1", "S5"}) {
		t.Errorf("unexpected order %v", got)
	}
}

func TestVectorLiteral(t *testing.T) {
	v := []float32{1, 0.5, -2}
	lit := vectorLiteral(v)
	if lit != "[1,0.5,-2]" {
		t.Errorf("unexpected literal %q", lit)
	}
	back, err := parseVectorLiteral(lit)
	if err != nil {
		t.Fatalf("parseVectorLiteral: %v", err)
	}
	for i := range v {
		if back[i] != v[i] {
			t.Errorf("index %d: expected %v, got %v", i, v[i], back[i])
		}
	}
	if _, err := parseVectorLiteral("1,2"); err == nil {
		t.Error("expected error for literal without brackets")
	}
}

func TestPointIDStable(t *testing.T) {
	a := PointID("S2111")
	if a != PointID("S2111") {
		t.Error("point ID must be deterministic")
	}
	if a == PointID("S1234") {
		t.Error("distinct issues must not share a point ID")
	}
}
