package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScene(t *testing.T) {
	assets := geoTestAssets(t)
	cache := NewMeshCache(0)
	viewer := ViewerConfig{WallHeight: 8, ObstacleMode: ObstacleCentroid}

	scene, err := BuildScene(assets, cache, viewer, nil)
	require.NoError(t, err)

	assert.Equal(t, "lab", scene.Profile)
	assert.Equal(t, FramePlain, scene.FrameMode)
	assert.Equal(t, ExplicitShell, scene.Shell)
	require.NotNil(t, scene.Mesh)
	assert.Equal(t, 8.0, scene.Mesh.Height)
	assert.InDelta(t, 6400, scene.Footprint, 1e-9)
	assert.Equal(t, []Vec3{{X: 35, Y: -35, Z: 0}}, scene.Obstacles)
	assert.Nil(t, scene.Marker)

	_, err = BuildScene(assets, cache, viewer, nil)
	require.NoError(t, err)
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestBuildScene_Marker(t *testing.T) {
	proj := &Projection{
		World:   Vec3{X: 10, Y: -14, Z: DefaultMarkerHeight},
		Metrics: DisplayMetrics{NaturalWidth: 120, NaturalHeight: 120, DisplayWidth: 60, DisplayHeight: 60},
	}
	scene, err := BuildScene(geoTestAssets(t), nil, ViewerConfig{}, proj)
	require.NoError(t, err)

	require.NotNil(t, scene.Marker)
	assert.Equal(t, proj.World, *scene.Marker)
	assert.Equal(t, DefaultWallHeight, scene.Mesh.Height, "zero height uses the default")
	assert.Equal(t, 60.0, scene.Metrics.DisplayWidth)
}

func TestBuildScene_EmptyShell(t *testing.T) {
	assets := geoTestAssets(t)
	assets.Shell = ShellVariant{}

	scene, err := BuildScene(assets, nil, ViewerConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, scene.Mesh)
	assert.Zero(t, scene.Footprint)
}

func TestBuildScene_NoAssets(t *testing.T) {
	_, err := BuildScene(nil, nil, ViewerConfig{}, nil)
	assert.ErrorContains(t, err, "no map loaded")
}

func TestBuildScene_CollinearShellKeepsObstaclesAndMarker(t *testing.T) {
	assets := geoTestAssets(t)
	assets.Shell = ShellVariant{Kind: InferredShell, Shell: BoundaryPolygonSet{
		Outer: Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}},
		Inner: Ring{{20, 20}, {50, 20}, {80, 20}},
	}}
	proj := &Projection{World: Vec3{X: 5, Y: -5, Z: DefaultMarkerHeight}}

	scene, err := BuildScene(assets, NewMeshCache(0), ViewerConfig{ObstacleMode: ObstacleCentroid}, proj)
	require.NoError(t, err)
	assert.Nil(t, scene.Mesh)
	assert.Zero(t, scene.Footprint)
	assert.NotEmpty(t, scene.Obstacles)
	require.NotNil(t, scene.Marker)
	assert.Equal(t, proj.World, *scene.Marker)
}
