package mesh

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Ring is an ordered polygon boundary. It may or may not repeat its first
// point at the end. On the wire it is a list of [x, y] pairs.
type Ring []Point

// UnmarshalJSON reads [[x,y], ...]. Extra coordinates per point are ignored.
func (r *Ring) UnmarshalJSON(data []byte) error {
	var coords [][]float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("ring: %w", err)
	}
	out := make(Ring, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return fmt.Errorf("ring point %d has %d coordinates", i, len(c))
		}
		out[i] = Point{X: c[0], Y: c[1]}
	}
	*r = out
	return nil
}

// MarshalJSON writes [[x,y], ...].
func (r Ring) MarshalJSON() ([]byte, error) {
	coords := make([][2]float64, len(r))
	for i, p := range r {
		coords[i] = [2]float64{p.X, p.Y}
	}
	return json.Marshal(coords)
}

// Orb converts the ring for use with orb algorithms.
func (r Ring) Orb() orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// RingFromOrb converts an orb ring back.
func RingFromOrb(o orb.Ring) Ring {
	out := make(Ring, len(o))
	for i, p := range o {
		out[i] = Point{X: p[0], Y: p[1]}
	}
	return out
}

// Bound returns the ring's axis-aligned bounding box.
func (r Ring) Bound() orb.Bound {
	return r.Orb().Bound()
}

// Clone returns an independent copy.
func (r Ring) Clone() Ring {
	if r == nil {
		return nil
	}
	out := make(Ring, len(r))
	copy(out, r)
	return out
}

// Open drops consecutive duplicate points and a closing point equal to the
// first one. The result is a new ring.
func (r Ring) Open() Ring {
	out := make(Ring, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// SignedArea is the shoelace area of the ring; positive means
// counter-clockwise in a y-up frame.
func SignedArea(r Ring) float64 {
	if len(r) < 3 {
		return 0
	}
	return planar.Area(r.Orb())
}

// Reverse returns the ring with its point order reversed.
func Reverse(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// EnsureCCW returns the ring wound counter-clockwise (y-up).
func EnsureCCW(r Ring) Ring {
	if SignedArea(r) < 0 {
		return Reverse(r)
	}
	return r.Clone()
}

// EnsureCW returns the ring wound clockwise (y-up).
func EnsureCW(r Ring) Ring {
	if SignedArea(r) > 0 {
		return Reverse(r)
	}
	return r.Clone()
}

// ToScene converts image coordinates (y down) to scene coordinates (y up).
func ToScene(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[i] = Point{X: p.X, Y: -p.Y}
	}
	return out
}

// Perimeter is the closed length of the ring.
func Perimeter(r Ring) float64 {
	if len(r) < 2 {
		return 0
	}
	total := 0.0
	for i := range r {
		total += Distance(r[i], r[(i+1)%len(r)])
	}
	return total
}

// TriangleArea returns the unsigned area of triangle abc.
func TriangleArea(a, b, c Point) float64 {
	return math.Abs((b.X-a.X)*(c.Y-a.Y)-(c.X-a.X)*(b.Y-a.Y)) / 2
}
