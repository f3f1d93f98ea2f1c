package mesh

import "fmt"

// FrameMode names the resolver that produced a Frame.
type FrameMode string

const (
	FrameAffine  FrameMode = "affine"
	FrameRotated FrameMode = "rotated"
	FramePlain   FrameMode = "plain"
	FrameHeading FrameMode = "heading"
)

// frameResolver builds the map-to-pixel matrix for one metadata shape. ok is
// false when the asset does not carry what the resolver needs.
type frameResolver struct {
	mode    FrameMode
	resolve func(GridMapAsset) (AffineMatrix, bool)
}

// frameResolvers is tried in order; the first applicable one wins.
var frameResolvers = []frameResolver{
	{FrameAffine, resolveAffine},
	{FrameRotated, resolveRotated},
	{FramePlain, resolvePlain},
	{FrameHeading, resolveHeading},
}

func resolveAffine(g GridMapAsset) (AffineMatrix, bool) {
	if g.Affine == nil {
		return AffineMatrix{}, false
	}
	return *g.Affine, true
}

func resolveRotated(g GridMapAsset) (AffineMatrix, bool) {
	if !g.Rotate90 || !hasPlainOrigin(g) {
		return AffineMatrix{}, false
	}
	return Chain(
		Translation(-g.Origin.X0, -g.Origin.Y0),
		Scale(1/g.Resolution, 1/g.Resolution),
		QuarterTurn(g.Width),
	), true
}

func resolvePlain(g GridMapAsset) (AffineMatrix, bool) {
	if !hasPlainOrigin(g) {
		return AffineMatrix{}, false
	}
	return Chain(
		Translation(-g.Origin.X0, -g.Origin.Y0),
		Scale(1/g.Resolution, 1/g.Resolution),
	), true
}

func resolveHeading(g GridMapAsset) (AffineMatrix, bool) {
	if g.Origin == nil || !g.Origin.HasHeading || g.Resolution <= 0 {
		return AffineMatrix{}, false
	}
	return Chain(
		Translation(-g.Origin.X0, -g.Origin.Y0),
		Rotation(-g.Origin.Theta),
		Scale(1/g.Resolution, 1/g.Resolution),
		FlipRows(g.Height),
	), true
}

func hasPlainOrigin(g GridMapAsset) bool {
	return g.Origin != nil && !g.Origin.HasHeading && g.Resolution > 0
}

// Frame converts between map-frame meters and raster pixels for one asset.
type Frame struct {
	Mode    FrameMode    `json:"mode"`
	Matrix  AffineMatrix `json:"matrix"`
	inverse AffineMatrix
	invOK   bool
}

// ResolveFrame picks the map-to-pixel transform for asset. It is a pure
// function of the asset.
func ResolveFrame(asset GridMapAsset) (Frame, error) {
	for _, r := range frameResolvers {
		m, ok := r.resolve(asset)
		if !ok {
			continue
		}
		return NewFrame(r.mode, m), nil
	}

	if asset.Resolution <= 0 {
		return Frame{}, ErrMissingResolution
	}
	if asset.Origin == nil {
		return Frame{}, ErrMissingOrigin
	}
	return Frame{}, fmt.Errorf("no frame resolver applies to metadata")
}

// NewFrame wraps an already-built map-to-pixel matrix.
func NewFrame(mode FrameMode, m AffineMatrix) Frame {
	inv, ok := InvertMatrix(m)
	return Frame{Mode: mode, Matrix: m, inverse: inv, invOK: ok}
}

// MapToPixel converts a map-frame position to natural-resolution pixels.
func (f Frame) MapToPixel(x, y float64) Point {
	return TransformPoint(Point{X: x, Y: y}, f.Matrix)
}

// PixelToMap converts a pixel position back to the map frame. ok is false
// when the frame matrix is singular.
func (f Frame) PixelToMap(px, py float64) (Point, bool) {
	if !f.invOK {
		return Point{}, false
	}
	return TransformPoint(Point{X: px, Y: py}, f.inverse), true
}
