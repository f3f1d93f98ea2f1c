package mesh

import "math"

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// Chain composes transforms in application order: Chain(a, b, c) applies a,
// then b, then c.
func Chain(steps ...AffineMatrix) AffineMatrix {
	result := Identity()
	for _, s := range steps {
		result = MultiplyMatrices(s, result)
	}
	return result
}

// InvertMatrix computes the inverse of an affine transform.
// ok is false when the matrix is singular (determinant ~= 0).
func InvertMatrix(m AffineMatrix) (AffineMatrix, bool) {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-10 {
		return AffineMatrix{}, false
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}, true
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin)
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sy, Ty: 0}
}

// QuarterTurn maps pixel (px, py) of an image that is width pixels wide to
// (py, width-1-px), the position after the image is rotated 90° CCW.
func QuarterTurn(width int) AffineMatrix {
	return AffineMatrix{A: 0, B: 1, Tx: 0, C: -1, D: 0, Ty: float64(width - 1)}
}

// FlipRows maps row y of an image height pixels tall to height-1-y.
func FlipRows(height int) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: -1, Ty: float64(height - 1)}
}

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return math.Sqrt(dx*dx + dy*dy)
}
