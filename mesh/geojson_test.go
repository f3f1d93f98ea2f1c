package mesh

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoTestAssets(t *testing.T) *MapAssets {
	t.Helper()
	meta := GridMapAsset{Width: 120, Height: 120, Resolution: 0.5, Origin: &Origin{X0: -1, Y0: -2}}
	frame, err := ResolveFrame(meta)
	require.NoError(t, err)
	return &MapAssets{
		Profile:   Profile{Name: "lab"},
		Meta:      meta,
		Frame:     &frame,
		Shell:     testShell(),
		Obstacles: []Ring{{{30, 30}, {40, 30}, {40, 40}, {30, 40}}, {{1, 1}, {2, 2}}},
	}
}

func featuresByKind(fc *geojson.FeatureCollection) map[string][]*geojson.Feature {
	out := map[string][]*geojson.Feature{}
	for _, f := range fc.Features {
		kind, _ := f.Properties["kind"].(string)
		out[kind] = append(out[kind], f)
	}
	return out
}

func TestParseGeoJSONFrame(t *testing.T) {
	tests := []struct {
		in      string
		want    GeoJSONFrame
		wantErr bool
	}{
		{"", GeoJSONPixels, false},
		{"pixel", GeoJSONPixels, false},
		{"map", GeoJSONMap, false},
		{"world", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGeoJSONFrame(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSceneFeatureCollection_Pixels(t *testing.T) {
	assets := geoTestAssets(t)
	proj := &Projection{Pose: PoseSample{X: 4, Y: 5}, Pixel: Point{X: 10, Y: 14}, Seq: 7}

	fc, err := SceneFeatureCollection(assets, proj, GeoJSONPixels)
	require.NoError(t, err)
	kinds := featuresByKind(fc)

	require.Len(t, kinds["wall"], 1)
	wall, ok := kinds["wall"][0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, wall, 2)
	assert.Equal(t, orb.CCW, wall[0].Orientation())
	assert.Equal(t, orb.CW, wall[1].Orientation())
	assert.True(t, wall[0].Closed())
	assert.Equal(t, "explicit", kinds["wall"][0].Properties["shell"])

	require.Len(t, kinds["floor"], 1)
	floor := kinds["floor"][0].Geometry.(orb.Polygon)
	assert.Equal(t, orb.CCW, floor[0].Orientation())

	require.Len(t, kinds["obstacle"], 1, "degenerate obstacle skipped")

	require.Len(t, kinds["marker"], 1)
	assert.Equal(t, orb.Point{10, 14}, kinds["marker"][0].Geometry)
	assert.Equal(t, uint64(7), kinds["marker"][0].Properties["seq"])
}

func TestSceneFeatureCollection_MapFrame(t *testing.T) {
	assets := geoTestAssets(t)
	proj := &Projection{Pose: PoseSample{X: 4, Y: 5}, Pixel: Point{X: 10, Y: 14}}

	fc, err := SceneFeatureCollection(assets, proj, GeoJSONMap)
	require.NoError(t, err)
	kinds := featuresByKind(fc)

	wall := kinds["wall"][0].Geometry.(orb.Polygon)
	b := wall[0].Bound()
	assert.InDelta(t, -1, b.Min[0], 1e-9)
	assert.InDelta(t, -2, b.Min[1], 1e-9)
	assert.InDelta(t, 49, b.Max[0], 1e-9)
	assert.InDelta(t, 48, b.Max[1], 1e-9)

	assert.Equal(t, orb.Point{4, 5}, kinds["marker"][0].Geometry)
}

func TestSceneFeatureCollection_MapFrameUnavailable(t *testing.T) {
	assets := geoTestAssets(t)
	assets.Frame = nil
	assets.FrameErr = ErrMissingResolution

	_, err := SceneFeatureCollection(assets, nil, GeoJSONMap)
	assert.ErrorIs(t, err, ErrMissingResolution)

	_, err = SceneFeatureCollection(assets, nil, GeoJSONPixels)
	assert.NoError(t, err, "pixel export needs no frame")
}

func TestSceneFeatureCollection_EmptyShell(t *testing.T) {
	assets := geoTestAssets(t)
	assets.Shell = ShellVariant{}
	assets.Obstacles = nil

	fc, err := SceneFeatureCollection(assets, nil, GeoJSONPixels)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}

func TestSceneFeatureCollection_JSON(t *testing.T) {
	fc, err := SceneFeatureCollection(geoTestAssets(t), nil, GeoJSONPixels)
	require.NoError(t, err)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc["type"])
	assert.Equal(t, "lab", doc["profile"])
	assert.Equal(t, "pixel", doc["frame"])

	decoded, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, decoded.Features, len(fc.Features))
}

func TestSceneFeatureCollection_NilAssets(t *testing.T) {
	fc, err := SceneFeatureCollection(nil, nil, GeoJSONMap)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}
