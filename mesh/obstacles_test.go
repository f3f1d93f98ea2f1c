package mesh

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitSquare = Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

func TestPointInPolygon(t *testing.T) {
	tests := []struct {
		name string
		pt   Point
		want bool
	}{
		{"center", Point{0.5, 0.5}, true},
		{"right of square", Point{1.5, 0.5}, false},
		{"left of square", Point{-0.5, 0.5}, false},
		{"above", Point{0.5, 1.5}, false},
		// Tie-break: minimum-x / minimum-y edges inside, maximum edges outside.
		{"on left edge", Point{0, 0.5}, true},
		{"on bottom edge", Point{0.5, 0}, true},
		{"on right edge", Point{1, 0.5}, false},
		{"on top edge", Point{0.5, 1}, false},
		{"min corner", Point{0, 0}, true},
		{"max corner", Point{1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInPolygon(tt.pt, unitSquare))
			// Winding must not change the answer.
			assert.Equal(t, tt.want, PointInPolygon(tt.pt, Reverse(unitSquare)))
		})
	}
}

func TestPointInPolygon_AgreesWithOrbAwayFromEdges(t *testing.T) {
	poly := Ring{{0, 0}, {10, 0}, {10, 10}, {5, 4}, {0, 10}}
	for x := 0.25; x < 10; x += 0.5 {
		for y := 0.25; y < 10; y += 0.5 {
			want := planar.RingContains(poly.Orb(), orb.Point{x, y})
			assert.Equal(t, want, PointInPolygon(Point{x, y}, poly), "(%v,%v)", x, y)
		}
	}
}

func TestPlaceCentroids(t *testing.T) {
	polys := []Ring{
		{{0, 0}, {10, 0}, {10, 20}, {0, 20}},
		{{1, 1}, {2, 2}},
		{{30, 40}, {50, 40}, {40, 60}},
	}
	got := PlaceCentroids(polys, 0.5)
	assert.Equal(t, []Vec3{{5, -10, 0.5}, {40, -50, 0.5}}, got)
}

func TestPlaceGrid(t *testing.T) {
	square := Ring{{0, 0}, {20, 0}, {20, 20}, {0, 20}}
	got := PlaceGrid([]Ring{square}, 10, 0)

	// 3x3 grid points on [0,20]; the x=20 and y=20 lines sit on max edges.
	want := []Vec3{{0, 0, 0}, {0, -10, 0}, {10, 0, 0}, {10, -10, 0}}
	assert.Equal(t, want, got)
}

func TestPlaceGrid_DefaultSpacingAndDegenerate(t *testing.T) {
	square := Ring{{0, 0}, {25, 0}, {25, 25}, {0, 25}}
	polys := []Ring{square, {{0, 0}, {5, 5}}, nil}

	got := PlaceGrid(polys, 0, 1)
	// x,y in {0,10,20}: all inside.
	require.Len(t, got, 9)
	for _, p := range got {
		assert.Equal(t, 1.0, p.Z)
		assert.LessOrEqual(t, p.Y, 0.0)
	}
}

func TestPlaceGrid_Concave(t *testing.T) {
	// L-shape; the notch at (15,15) must stay empty.
	l := Ring{{0, 0}, {20, 0}, {20, 10}, {10, 10}, {10, 20}, {0, 20}}
	got := PlaceGrid([]Ring{l}, 5, 0)
	for _, p := range got {
		assert.False(t, p.X > 10 && -p.Y > 10, "point %v in notch", p)
	}
	assert.NotEmpty(t, got)
}

func TestPlacement_DoesNotMutateInput(t *testing.T) {
	polys := []Ring{{{0, 0}, {20, 0}, {20, 20}, {0, 20}}}
	before := polys[0].Clone()
	PlaceGrid(polys, 10, 0)
	PlaceCentroids(polys, 0)
	assert.Equal(t, before, polys[0])
}

func TestPlaceObstacles_Mode(t *testing.T) {
	polys := []Ring{{{0, 0}, {20, 0}, {20, 20}, {0, 20}}}
	assert.Len(t, PlaceObstacles(polys, ObstacleCentroid, 10, 0), 1)
	assert.Len(t, PlaceObstacles(polys, ObstacleGrid, 10, 0), 4)
	assert.Len(t, PlaceObstacles(polys, "", 10, 0), 4)
}

func TestParseObstacleDocument(t *testing.T) {
	polys, err := ParseObstacleDocument([]byte(`{"obstacles":[[[0,0],[1,0],[1,1]],[[5,5],[6,6]]]}`))
	require.NoError(t, err)
	require.Len(t, polys, 2)
	assert.Equal(t, Ring{{0, 0}, {1, 0}, {1, 1}}, polys[0])

	polys, err = ParseObstacleDocument([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, polys)

	_, err = ParseObstacleDocument([]byte(`[1,2]`))
	assert.Error(t, err)
}
