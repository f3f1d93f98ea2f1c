package mesh

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roomRaster is a 40x30 white raster with a two pixel black wall loop
// spanning (5,5)-(34,24).
func roomRaster() *RasterBuffer {
	r := &RasterBuffer{Width: 40, Height: 30, MaxValue: 255, Pixels: make([]uint8, 40*30)}
	for i := range r.Pixels {
		r.Pixels[i] = 255
	}
	for y := 5; y <= 24; y++ {
		for x := 5; x <= 34; x++ {
			if x <= 6 || x >= 33 || y <= 6 || y >= 23 {
				r.Pixels[y*40+x] = 0
			}
		}
	}
	return r
}

func bitmapFrom(rows ...string) *bitmap {
	b := newBitmap(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				b.set(x, y)
			}
		}
	}
	return b
}

func TestParseROSMapYAML(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantErr   string
		wantTheta bool
	}{
		{"full", "image: map.pgm\nresolution: 0.05\norigin: [-1.0, -2.0, 0.0]\nnegate: 0\n", "", false},
		{"heading", "resolution: 0.1\norigin: [1, 2, 0.5]\n", "", true},
		{"no origin", "resolution: 0.05\n", "", false},
		{"no resolution", "origin: [0, 0, 0]\n", "resolution", false},
		{"bad origin", "resolution: 0.05\norigin: [1, 2, 3, 4]\n", "origin", false},
		{"bad yaml", "resolution: [", "parsing map yaml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseROSMapYAML([]byte(tt.doc))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTheta, meta.OriginValue().HasHeading)
		})
	}
}

func TestOtsuThreshold_Bimodal(t *testing.T) {
	pixels := make([]uint8, 0, 100)
	for range 60 {
		pixels = append(pixels, 10)
	}
	for range 40 {
		pixels = append(pixels, 200)
	}
	th := otsuThreshold(pixels)
	assert.GreaterOrEqual(t, th, uint8(10))
	assert.Less(t, th, uint8(200))
}

func TestBinarize_MinorityIsForeground(t *testing.T) {
	b := binarize(roomRaster())
	assert.False(t, b.get(0, 0), "white background is the majority")
	assert.True(t, b.get(5, 5), "black wall is the minority")
}

func TestBitmapClose_FillsGap(t *testing.T) {
	b := bitmapFrom(
		".........",
		".........",
		"..##.##..",
		"..##.##..",
		".........",
		".........",
	)
	closed := b.close(3, 1)
	assert.True(t, closed.get(4, 2))
	assert.True(t, closed.get(4, 3))
	assert.False(t, closed.get(1, 1))
	assert.False(t, closed.get(0, 0))
}

func TestBitmapErodeDisk(t *testing.T) {
	b := newBitmap(11, 11)
	for i := range b.px {
		b.px[i] = true
	}
	eroded := b.erodeDisk(2)
	assert.False(t, eroded.get(1, 5))
	assert.True(t, eroded.get(2, 5))
	assert.True(t, eroded.get(5, 5))
	assert.Equal(t, 7*7, eroded.count())
}

func TestTraceOuter_Square(t *testing.T) {
	b := bitmapFrom(
		".......",
		".......",
		"..###..",
		"..###..",
		"..###..",
		".......",
	)
	contours := b.externalContours()
	require.Len(t, contours, 1)
	assert.Equal(t, Ring{
		{2, 2}, {3, 2}, {4, 2}, {4, 3}, {4, 4}, {3, 4}, {2, 4}, {2, 3},
	}, contours[0])
}

func TestExternalContours_SkipsEnclosed(t *testing.T) {
	b := bitmapFrom(
		".........",
		".#######.",
		".#.....#.",
		".#.....#.",
		".#..#..#.",
		".#.....#.",
		".#.....#.",
		".#######.",
		".........",
	)
	contours := b.externalContours()
	require.Len(t, contours, 1)
	assert.Equal(t, Point{X: 1, Y: 1}, contours[0][0])
}

func TestExternalContours_SinglePixel(t *testing.T) {
	contours := bitmapFrom("...", ".#.", "...").externalContours()
	require.Len(t, contours, 1)
	assert.Equal(t, Ring{{1, 1}}, contours[0])
}

func TestDropFrameContours(t *testing.T) {
	frame := Ring{{0, 0}, {39, 0}, {39, 29}, {0, 29}}
	room := Ring{{5, 5}, {34, 5}, {34, 24}, {5, 24}}

	assert.Equal(t, []Ring{room}, dropFrameContours([]Ring{frame, room}, 40, 30, 3))
	assert.Equal(t, []Ring{frame}, dropFrameContours([]Ring{frame}, 40, 30, 3), "all dropped keeps input")
}

func TestDropSmallContours(t *testing.T) {
	big := Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	mid := Ring{{0, 0}, {20, 0}, {20, 20}, {0, 20}}
	tiny := Ring{{0, 0}, {5, 0}, {5, 5}, {0, 5}}

	got := dropSmallContours([]Ring{tiny, mid, big}, 0.01)
	assert.Equal(t, []Ring{big, mid}, got)
}

func TestGenerateShell_Legacy(t *testing.T) {
	ros := &ROSMapMeta{Resolution: 0.05, Origin: []float64{-1, -2, 0}}
	res, err := GenerateShell(roomRaster(), ros, DefaultShellGenOptions())
	require.NoError(t, err)

	require.Len(t, res.Polygons, 1)
	assert.Nil(t, res.Shell)
	poly := res.Polygons[0]
	assert.Len(t, poly, 4)
	b := poly.Bound()
	assert.Equal(t, [2]float64{5, 5}, [2]float64(b.Min))
	assert.Equal(t, [2]float64{34, 24}, [2]float64(b.Max))

	assert.Equal(t, 40, res.Meta.Width)
	assert.Equal(t, 30, res.Meta.Height)
	require.NotNil(t, res.Meta.Origin)
	assert.False(t, res.Meta.Origin.HasHeading)
}

func TestGenerateShell_Explicit(t *testing.T) {
	opts := DefaultShellGenOptions()
	opts.Explicit = true
	res, err := GenerateShell(roomRaster(), &ROSMapMeta{Resolution: 0.05, Origin: []float64{0, 0, 0}}, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Shell)

	inner := res.Shell.Inner.Bound()
	assert.InDelta(t, 10, inner.Min[0], 1)
	assert.InDelta(t, 10, inner.Min[1], 1)
	assert.InDelta(t, 29, inner.Max[0], 1)
	assert.InDelta(t, 19, inner.Max[1], 1)

	shell := ExplicitShellOf(res.Shell.Outer, res.Shell.Inner)
	assert.Equal(t, ExplicitShell, shell.Kind)
}

func TestGenerateShell_Rotate90(t *testing.T) {
	opts := DefaultShellGenOptions()
	opts.Rotate90 = true
	res, err := GenerateShell(roomRaster(), &ROSMapMeta{Resolution: 0.05, Origin: []float64{0, 0}}, opts)
	require.NoError(t, err)

	assert.Equal(t, 30, res.Meta.Width)
	assert.Equal(t, 40, res.Meta.Height)
	assert.True(t, res.Meta.Rotate90)
	b := res.Polygons[0].Bound()
	assert.Equal(t, [2]float64{5, 5}, [2]float64(b.Min))
	assert.Equal(t, [2]float64{24, 34}, [2]float64(b.Max))
}

func TestGenerateShell_Errors(t *testing.T) {
	ros := &ROSMapMeta{Resolution: 0.05, Origin: []float64{0, 0}}

	_, err := GenerateShell(nil, ros, DefaultShellGenOptions())
	assert.ErrorContains(t, err, "empty raster")

	_, err = GenerateShell(roomRaster(), nil, DefaultShellGenOptions())
	assert.ErrorContains(t, err, "map yaml")

	flat := &RasterBuffer{Width: 4, Height: 4, MaxValue: 255, Pixels: make([]uint8, 16)}
	_, err = GenerateShell(flat, ros, DefaultShellGenOptions())
	assert.ErrorContains(t, err, "no wall contours")
}

func TestShellResult_WriteFiles(t *testing.T) {
	opts := DefaultShellGenOptions()
	opts.Explicit = true
	res, err := GenerateShell(roomRaster(), &ROSMapMeta{Resolution: 0.05, Origin: []float64{1.5, -2, 0}}, opts)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, res.WriteFiles(dir))

	walls, err := os.ReadFile(filepath.Join(dir, DefaultWallsAsset))
	require.NoError(t, err)
	shell, err := ParseBoundaryDocument(walls)
	require.NoError(t, err)
	assert.Equal(t, ExplicitShell, shell.Kind)

	pgmRaw, err := os.ReadFile(filepath.Join(dir, DefaultRasterAsset))
	require.NoError(t, err)
	raster, err := DecodePGM(pgmRaw)
	require.NoError(t, err)
	assert.Equal(t, roomRaster().Pixels, raster.Pixels)

	metaRaw, err := os.ReadFile(filepath.Join(dir, DefaultMetaAsset))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(metaRaw, &doc))
	assert.Equal(t, []any{1.5, -2.0}, doc["origin"], "zero heading is omitted")

	var meta GridMapAsset
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.Equal(t, 40, meta.Width)
	assert.Equal(t, 0.05, meta.Resolution)
	require.NotNil(t, meta.Origin)
	assert.Equal(t, 1.5, meta.Origin.X0)
}

func TestShellResult_LegacyJSON(t *testing.T) {
	res, err := GenerateShell(roomRaster(), &ROSMapMeta{Resolution: 0.05, Origin: []float64{0, 0}}, DefaultShellGenOptions())
	require.NoError(t, err)

	data, err := res.WallShellJSON()
	require.NoError(t, err)
	shell, err := ParseBoundaryDocument(data)
	require.NoError(t, err)
	assert.Equal(t, InferredShell, shell.Kind)
	assert.Equal(t, 1, shell.Candidates)
}
