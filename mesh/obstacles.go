package mesh

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultObstacleSpacing is the grid step, in pixels, for dense placement.
const DefaultObstacleSpacing = 10.0

// ObstacleMode selects how obstacle footprints become marker positions.
type ObstacleMode string

const (
	// ObstacleCentroid places one marker at each footprint's bounding-box center.
	ObstacleCentroid ObstacleMode = "centroid"
	// ObstacleGrid fills each footprint with markers on a regular grid.
	ObstacleGrid ObstacleMode = "grid"
)

// ParseObstacleDocument reads {"obstacles": [[[x,y],...], ...]}.
func ParseObstacleDocument(data []byte) ([]Ring, error) {
	var doc struct {
		Obstacles []Ring `json:"obstacles"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing obstacle document: %w", err)
	}
	return doc.Obstacles, nil
}

// PlaceObstacles dispatches on mode. Unknown modes fall back to grid.
func PlaceObstacles(polys []Ring, mode ObstacleMode, spacing, offset float64) []Vec3 {
	if mode == ObstacleCentroid {
		return PlaceCentroids(polys, offset)
	}
	return PlaceGrid(polys, spacing, offset)
}

// PlaceCentroids returns one point per polygon at its bounding-box center,
// with y negated into scene coordinates.
func PlaceCentroids(polys []Ring, offset float64) []Vec3 {
	out := make([]Vec3, 0, len(polys))
	for _, p := range polys {
		if len(p) < 3 {
			continue
		}
		c := p.Bound().Center()
		out = append(out, Vec3{X: c[0], Y: -c[1], Z: offset})
	}
	return out
}

// PlaceGrid walks each polygon's bounding box at spacing, min to max
// inclusive, and keeps the points PointInPolygon accepts.
func PlaceGrid(polys []Ring, spacing, offset float64) []Vec3 {
	if spacing <= 0 {
		spacing = DefaultObstacleSpacing
	}

	var out []Vec3
	for _, p := range polys {
		if len(p) < 3 {
			continue
		}
		b := p.Bound()
		nx := int(math.Floor((b.Max[0]-b.Min[0])/spacing + 1e-9))
		ny := int(math.Floor((b.Max[1]-b.Min[1])/spacing + 1e-9))
		for i := 0; i <= nx; i++ {
			x := b.Min[0] + float64(i)*spacing
			for j := 0; j <= ny; j++ {
				y := b.Min[1] + float64(j)*spacing
				if PointInPolygon(Point{X: x, Y: y}, p) {
					out = append(out, Vec3{X: x, Y: -y, Z: offset})
				}
			}
		}
	}
	return out
}

// PointInPolygon is an even-odd ray cast towards +x. An edge counts when it
// straddles the ray half-open in y and crosses strictly to the right of the
// point, so points on minimum-x or minimum-y edges are inside and points on
// maximum-x or maximum-y edges are outside.
func PointInPolygon(pt Point, poly Ring) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) &&
			pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
