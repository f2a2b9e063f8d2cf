package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtIsPure(t *testing.T) {
	for _, scale := range []float64{0.01, 0.1, 1, 100} {
		for i := 0; i < 200; i++ {
			assert.Equal(t, At(i, scale), At(i, scale))
		}
	}
}

func TestAtRange(t *testing.T) {
	for _, scale := range []float64{0.001, 0.05, 0.1, 0.5, 1, 7.3, 100} {
		for i := -500; i < 2000; i++ {
			v := At(i, scale)
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("At(%d, %v) = %v, out of [0,1]", i, scale, v)
			}
		}
	}
}

func TestAtKnownValues(t *testing.T) {
	want := []float64{0.5, 0.314141, 0.2079, 0.186546}
	for i, w := range want {
		assert.InDelta(t, w, At(i, 0.1), 1e-6, "index %d", i)
	}
}

func TestAtIsSmooth(t *testing.T) {
	// Neighbouring fragments drift rather than jump.
	tests := []struct {
		scale   float64
		maxStep float64
	}{
		{0.05, 0.2},
		{0.1, 0.3},
	}
	for _, tt := range tests {
		prev := At(0, tt.scale)
		for i := 1; i < 2000; i++ {
			cur := At(i, tt.scale)
			if d := math.Abs(cur - prev); d > tt.maxStep {
				t.Fatalf("scale %v: |At(%d)-At(%d)| = %v > %v", tt.scale, i, i-1, d, tt.maxStep)
			}
			prev = cur
		}
	}
}

func TestAtVaries(t *testing.T) {
	seen := map[float64]bool{}
	for i := 0; i < 50; i++ {
		seen[At(i, 0.1)] = true
	}
	assert.Greater(t, len(seen), 40)
}

func TestSimplex2Bounds(t *testing.T) {
	for x := -20.0; x < 20; x += 0.37 {
		for y := -20.0; y < 20; y += 0.41 {
			v := Simplex2(x, y)
			assert.True(t, v >= -1 && v <= 1)
		}
	}
}
