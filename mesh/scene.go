package mesh

import "fmt"

// Scene is the 3D view's content for one loaded profile: the extruded
// walls, the floor patch, obstacle markers and the pose marker.
type Scene struct {
	Profile    string         `json:"profile"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Resolution float64        `json:"resolution"`
	FrameMode  FrameMode      `json:"frameMode,omitempty"`
	Shell      ShellKind      `json:"shell"`
	Mesh       *WallMesh      `json:"mesh,omitempty"`
	Footprint  float64        `json:"footprintArea"`
	Obstacles  []Vec3         `json:"obstacles"`
	Marker     *Vec3          `json:"marker,omitempty"`
	Metrics    DisplayMetrics `json:"metrics"`
}

// BuildScene assembles the scene for assets using cache for the wall mesh.
// proj may be nil when no marker is visible.
func BuildScene(assets *MapAssets, cache *MeshCache, viewer ViewerConfig, proj *Projection) (*Scene, error) {
	if assets == nil {
		return nil, fmt.Errorf("build scene: no map loaded")
	}
	height := viewer.WallHeight
	if height <= 0 {
		height = DefaultWallHeight
	}

	var (
		wall *WallMesh
		err  error
	)
	if cache != nil {
		wall, err = cache.Get(assets.Shell, height)
	} else {
		wall, err = BuildWallMesh(assets.Shell, height)
	}
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}

	scene := &Scene{
		Profile:    assets.Profile.Name,
		Width:      assets.Meta.Width,
		Height:     assets.Meta.Height,
		Resolution: assets.Meta.Resolution,
		Shell:      assets.Shell.Kind,
		Mesh:       wall,
		Obstacles:  PlaceObstacles(assets.Obstacles, viewer.ObstacleMode, viewer.ObstacleSpacing, viewer.ObstacleOffset),
		Metrics:    assets.Metrics(),
	}
	if assets.Raster != nil {
		scene.Width, scene.Height = assets.Raster.Width, assets.Raster.Height
	}
	if assets.Frame != nil {
		scene.FrameMode = assets.Frame.Mode
	}
	if wall != nil {
		scene.Footprint = wall.FootprintArea()
	}
	if proj != nil {
		m := proj.World
		scene.Marker = &m
		scene.Metrics = proj.Metrics
	}
	return scene, nil
}
