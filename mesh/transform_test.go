package mesh

import (
	"math"
	"testing"
)

const epsilon = 1e-10

// almostEqual checks if two floats are equal within epsilon tolerance
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// matricesEqual checks if two affine matrices are equal within epsilon tolerance
func matricesEqual(m1, m2 AffineMatrix) bool {
	return almostEqual(m1.A, m2.A) &&
		almostEqual(m1.B, m2.B) &&
		almostEqual(m1.Tx, m2.Tx) &&
		almostEqual(m1.C, m2.C) &&
		almostEqual(m1.D, m2.D) &&
		almostEqual(m1.Ty, m2.Ty)
}

// pointsEqual checks if two points are equal within epsilon tolerance
func pointsEqual(p1, p2 Point) bool {
	return almostEqual(p1.X, p2.X) && almostEqual(p1.Y, p2.Y)
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name   string
		point  Point
		matrix AffineMatrix
		want   Point
	}{
		{
			name:   "identity transform",
			point:  Point{X: 10, Y: 20},
			matrix: Identity(),
			want:   Point{X: 10, Y: 20},
		},
		{
			name:   "translation only",
			point:  Point{X: 5, Y: 5},
			matrix: Translation(10, 15),
			want:   Point{X: 15, Y: 20},
		},
		{
			name:   "scale by inverse resolution",
			point:  Point{X: 1.5, Y: -0.5},
			matrix: Scale(20, 20),
			want:   Point{X: 30, Y: -10},
		},
		{
			name:   "90 degree rotation",
			point:  Point{X: 1, Y: 0},
			matrix: Rotation(math.Pi / 2),
			want:   Point{X: 0, Y: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformPoint(tt.point, tt.matrix)
			if !pointsEqual(got, tt.want) {
				t.Errorf("TransformPoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiplyMatrices(t *testing.T) {
	tests := []struct {
		name  string
		m1    AffineMatrix
		m2    AffineMatrix
		point Point
	}{
		{"translate after scale", Translation(3, 4), Scale(2, 2), Point{X: 1, Y: 1}},
		{"rotate after translate", Rotation(math.Pi / 2), Translation(1, 0), Point{X: 2, Y: 3}},
		{"flip after quarter turn", FlipRows(10), QuarterTurn(6), Point{X: 4, Y: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composed := TransformPoint(tt.point, MultiplyMatrices(tt.m1, tt.m2))
			stepwise := TransformPoint(TransformPoint(tt.point, tt.m2), tt.m1)
			if !pointsEqual(composed, stepwise) {
				t.Errorf("MultiplyMatrices() applied = %v, stepwise = %v", composed, stepwise)
			}
		})
	}
}

func TestChain(t *testing.T) {
	// Chain applies left to right, matching nested MultiplyMatrices.
	want := MultiplyMatrices(Scale(20, 20), Translation(-1, -2))
	got := Chain(Translation(-1, -2), Scale(20, 20))
	if !matricesEqual(got, want) {
		t.Errorf("Chain() = %v, want %v", got, want)
	}

	if !matricesEqual(Chain(), Identity()) {
		t.Errorf("Chain() with no steps = %v, want identity", Chain())
	}
}

func TestInvertMatrix(t *testing.T) {
	tests := []struct {
		name   string
		matrix AffineMatrix
		wantOK bool
	}{
		{"identity", Identity(), true},
		{"translation", Translation(5, -7), true},
		{"rotation", Rotation(0.576), true},
		{"scale", Scale(20, 20), true},
		{"quarter turn", QuarterTurn(64), true},
		{"singular", AffineMatrix{A: 1, B: 2, C: 2, D: 4}, false},
		{"zero scale", Scale(0, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := InvertMatrix(tt.matrix)
			if ok != tt.wantOK {
				t.Fatalf("InvertMatrix() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if product := MultiplyMatrices(inv, tt.matrix); !matricesEqual(product, Identity()) {
				t.Errorf("inverse * matrix = %v, want identity", product)
			}
		})
	}
}

func TestQuarterTurn(t *testing.T) {
	// A 4-wide image: the top-right pixel (3,0) ends up at row 0 after a CCW turn.
	m := QuarterTurn(4)
	tests := []struct {
		in, want Point
	}{
		{Point{X: 0, Y: 0}, Point{X: 0, Y: 3}},
		{Point{X: 3, Y: 0}, Point{X: 0, Y: 0}},
		{Point{X: 1, Y: 2}, Point{X: 2, Y: 2}},
	}
	for _, tt := range tests {
		if got := TransformPoint(tt.in, m); !pointsEqual(got, tt.want) {
			t.Errorf("QuarterTurn(4)(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlipRows(t *testing.T) {
	m := FlipRows(10)
	if got := TransformPoint(Point{X: 2, Y: 0}, m); !pointsEqual(got, Point{X: 2, Y: 9}) {
		t.Errorf("FlipRows(10)(2,0) = %v, want (2,9)", got)
	}
	if got := TransformPoint(Point{X: 2, Y: 9}, m); !pointsEqual(got, Point{X: 2, Y: 0}) {
		t.Errorf("FlipRows(10)(2,9) = %v, want (2,0)", got)
	}
}

func TestRotation(t *testing.T) {
	m := Rotation(math.Pi / 2)
	if !almostEqual(m.A, 0) || !almostEqual(m.B, -1) || !almostEqual(m.C, 1) || !almostEqual(m.D, 0) {
		t.Errorf("Rotation(pi/2) = %v", m)
	}
	if half := Rotation(math.Pi); !matricesEqual(half, Scale(-1, -1)) {
		t.Errorf("Rotation(pi) = %v, want a point reflection", half)
	}
}

func TestDistance(t *testing.T) {
	if got := Distance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4}); !almostEqual(got, 5) {
		t.Errorf("Distance() = %v, want 5", got)
	}
}
