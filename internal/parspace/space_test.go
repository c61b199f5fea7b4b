package parspace

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		lower   []float64
		upper   []float64
		names   []string
		wantDim bool
		wantErr bool
	}{
		{name: "valid", lower: []float64{0, -1}, upper: []float64{1, 1}, names: []string{"a", "b"}},
		{name: "upper length", lower: []float64{0}, upper: []float64{1, 2}, names: []string{"a"}, wantErr: true, wantDim: true},
		{name: "names length", lower: []float64{0}, upper: []float64{1}, names: nil, wantErr: true, wantDim: true},
		{name: "empty", lower: nil, upper: nil, names: nil, wantErr: true},
		{name: "inverted", lower: []float64{2}, upper: []float64{1}, names: []string{"a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.lower, tt.upper, tt.names)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantDim && !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("Expected ErrDimensionMismatch, got %v", err)
			}
		})
	}
}

func TestUniformSampleWithinBounds(t *testing.T) {
	s := MustNew([]float64{-50, -40}, []float64{50, 80}, []string{"p1", "p2"})
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		v := s.UniformSample(rng)
		if len(v) != 2 {
			t.Fatalf("Expected 2 components, got %d", len(v))
		}
		if !s.Contains(v) {
			t.Fatalf("Sample %v outside bounds", v)
		}
	}
}

func TestUniformSampleDrawOrder(t *testing.T) {
	s := MustNew([]float64{0, 10}, []float64{1, 20}, []string{"a", "b"})

	v := s.UniformSample(rand.New(rand.NewSource(3)))

	ref := rand.New(rand.NewSource(3))
	want0 := ref.Float64()
	want1 := 10 + ref.Float64()*10
	if v[0] != want0 || v[1] != want1 {
		t.Errorf("Expected [%f %f], got %v", want0, want1, v)
	}
}

func TestReflect(t *testing.T) {
	s := MustNew([]float64{0}, []float64{10}, []string{"x"})

	tests := []struct {
		in   float64
		want float64
	}{
		{in: 5, want: 5},
		{in: 0, want: 0},
		{in: 10, want: 10},
		{in: -3, want: 3},
		{in: 12, want: 8},
		{in: 25, want: 5},  // 25 -> -5 -> 5
		{in: -27, want: 7}, // -27 -> 27 -> -7 -> 7
	}

	for _, tt := range tests {
		v := []float64{tt.in}
		if err := s.Reflect(v); err != nil {
			t.Fatalf("Reflect(%f) failed: %v", tt.in, err)
		}
		if math.Abs(v[0]-tt.want) > 1e-12 {
			t.Errorf("Reflect(%f) = %f, want %f", tt.in, v[0], tt.want)
		}
	}
}

func TestReflectEdgeCases(t *testing.T) {
	s := MustNew([]float64{1, 0}, []float64{1, 2}, []string{"fixed", "y"})

	v := []float64{5, math.NaN()}
	if err := s.Reflect(v); err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if v[0] != 1 {
		t.Errorf("Degenerate dimension should collapse to bound, got %f", v[0])
	}
	if !math.IsNaN(v[1]) {
		t.Errorf("NaN should propagate, got %f", v[1])
	}

	inf := []float64{1, math.Inf(1)}
	if err := s.Reflect(inf); err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if inf[1] != 2 {
		t.Errorf("Expected +Inf to land on upper bound, got %f", inf[1])
	}
}

func TestReflectDimensionMismatch(t *testing.T) {
	s := MustNew([]float64{0}, []float64{1}, []string{"x"})

	err := s.ReflectAll([][]float64{{0.5}, {0.1, 0.2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestWithIntervals(t *testing.T) {
	s := MustNew([]float64{0, 0}, []float64{1, 1}, []string{"a", "b"})

	if s.Intervals(0) != defaultIntervals {
		t.Errorf("Expected default intervals %d, got %d", defaultIntervals, s.Intervals(0))
	}
	if _, err := s.WithIntervals(10, 20); err != nil {
		t.Fatalf("WithIntervals failed: %v", err)
	}
	if s.Intervals(1) != 20 {
		t.Errorf("Expected 20 intervals, got %d", s.Intervals(1))
	}
	if _, err := s.WithIntervals(1, 2, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}
