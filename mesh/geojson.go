package mesh

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSONFrame selects the coordinate space of exported features.
type GeoJSONFrame string

const (
	// GeoJSONPixels keeps natural raster pixel coordinates (y down).
	GeoJSONPixels GeoJSONFrame = "pixel"
	// GeoJSONMap converts every vertex to map-frame meters.
	GeoJSONMap GeoJSONFrame = "map"
)

// ParseGeoJSONFrame accepts "", "pixel" and "map".
func ParseGeoJSONFrame(s string) (GeoJSONFrame, error) {
	switch GeoJSONFrame(s) {
	case "", GeoJSONPixels:
		return GeoJSONPixels, nil
	case GeoJSONMap:
		return GeoJSONMap, nil
	}
	return "", fmt.Errorf("unknown geojson frame %q", s)
}

// pointMapper converts one raster pixel into the output frame.
type pointMapper func(Point) (orb.Point, error)

func newPointMapper(assets *MapAssets, frame GeoJSONFrame) (pointMapper, error) {
	if frame != GeoJSONMap {
		return func(p Point) (orb.Point, error) {
			return orb.Point{p.X, p.Y}, nil
		}, nil
	}
	if assets.Frame == nil {
		if assets.FrameErr != nil {
			return nil, fmt.Errorf("map frame unavailable: %w", assets.FrameErr)
		}
		return nil, fmt.Errorf("map frame unavailable")
	}
	f := *assets.Frame
	return func(p Point) (orb.Point, error) {
		m, ok := f.PixelToMap(p.X, p.Y)
		if !ok {
			return orb.Point{}, fmt.Errorf("%s frame is not invertible", f.Mode)
		}
		return orb.Point{m.X, m.Y}, nil
	}, nil
}

// ringToOrb converts a ring through mapper, closes it and winds it as
// orient in the output frame.
func ringToOrb(r Ring, mapper pointMapper, orient orb.Orientation) (orb.Ring, error) {
	open := r.Open()
	out := make(orb.Ring, 0, len(open)+1)
	for _, p := range open {
		q, err := mapper(p)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if len(out) > 0 {
		out = append(out, out[0])
	}
	if o := out.Orientation(); o != 0 && o != orient {
		out.Reverse()
	}
	return out, nil
}

// SceneFeatureCollection exports the loaded shell, obstacles and, when proj
// is given, the marker as GeoJSON. Feature kinds are "wall" (outer with the
// inner ring as a hole), "floor" (the inner ring) and "obstacle" polygons
// plus a "marker" point.
func SceneFeatureCollection(assets *MapAssets, proj *Projection, frame GeoJSONFrame) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	if assets == nil {
		return fc, nil
	}
	mapper, err := newPointMapper(assets, frame)
	if err != nil {
		return nil, err
	}

	if !assets.Shell.IsEmpty() {
		outer, err := ringToOrb(assets.Shell.Shell.Outer, mapper, orb.CCW)
		if err != nil {
			return nil, fmt.Errorf("exporting outer ring: %w", err)
		}
		inner, err := ringToOrb(assets.Shell.Shell.Inner, mapper, orb.CW)
		if err != nil {
			return nil, fmt.Errorf("exporting inner ring: %w", err)
		}

		wall := geojson.NewFeature(orb.Polygon{outer, inner})
		wall.Properties["kind"] = "wall"
		wall.Properties["shell"] = assets.Shell.Kind.String()
		fc.Append(wall)

		floorRing, err := ringToOrb(assets.Shell.Shell.Inner, mapper, orb.CCW)
		if err != nil {
			return nil, fmt.Errorf("exporting floor ring: %w", err)
		}
		floor := geojson.NewFeature(orb.Polygon{floorRing})
		floor.Properties["kind"] = "floor"
		fc.Append(floor)
	}

	for i, poly := range assets.Obstacles {
		if len(poly.Open()) < 3 {
			continue
		}
		ring, err := ringToOrb(poly, mapper, orb.CCW)
		if err != nil {
			return nil, fmt.Errorf("exporting obstacle %d: %w", i, err)
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["kind"] = "obstacle"
		f.Properties["index"] = i
		fc.Append(f)
	}

	if proj != nil {
		var pt orb.Point
		if frame == GeoJSONMap {
			pt = orb.Point{proj.Pose.X, proj.Pose.Y}
		} else {
			pt = orb.Point{proj.Pixel.X, proj.Pixel.Y}
		}
		marker := geojson.NewFeature(pt)
		marker.Properties["kind"] = "marker"
		marker.Properties["seq"] = proj.Seq
		fc.Append(marker)
	}

	fc.ExtraMembers = geojson.Properties{
		"profile": assets.Profile.Name,
		"frame":   string(frame),
	}
	return fc, nil
}
