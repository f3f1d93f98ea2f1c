package mesh

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// OverlayStyle holds overlay colors and stroke widths in display pixels.
type OverlayStyle struct {
	Background   color.NRGBA
	Floor        color.NRGBA
	Wall         color.NRGBA
	WallWidth    float64
	Obstacle     color.NRGBA
	Marker       color.NRGBA
	MarkerRadius float64
}

// DefaultOverlayStyle returns the style used by /overlay.svg and /overlay.png.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{
		Background:   color.NRGBA{255, 255, 255, 255},
		Floor:        color.NRGBA{227, 242, 253, 255},
		Wall:         color.NRGBA{30, 136, 229, 255},
		WallWidth:    2,
		Obstacle:     color.NRGBA{251, 140, 0, 180},
		Marker:       color.NRGBA{229, 57, 53, 255},
		MarkerRadius: 5,
	}
}

// OverlayRenderer draws the 2D overlay at display size: the boundary shell,
// obstacle polygons and the pose marker. Geometry is given in natural raster
// pixels and scaled by the display metrics; the marker is placed at the
// projection's overlay position.
type OverlayRenderer struct {
	Shell     ShellVariant
	Obstacles []Ring
	Metrics   DisplayMetrics
	Style     OverlayStyle
	// Resolution maps one display pixel to one output pixel by default.
	Resolution canvas.Resolution
}

// NewOverlayRenderer creates a renderer for assets drawn at metrics. Invalid
// metrics fall back to the raster's natural size.
func NewOverlayRenderer(assets *MapAssets, metrics DisplayMetrics) *OverlayRenderer {
	if !metrics.Valid() {
		metrics = assets.Metrics()
	}
	return &OverlayRenderer{
		Shell:      assets.Shell,
		Obstacles:  assets.Obstacles,
		Metrics:    metrics,
		Style:      DefaultOverlayStyle(),
		Resolution: canvas.DPI(25.4),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the overlay as SVG. proj may be nil.
func (r *OverlayRenderer) RenderToSVG(w io.Writer, proj *Projection) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height, proj)
	return svgRenderer.Close()
}

// RenderToPNG writes the overlay as PNG. proj may be nil.
func (r *OverlayRenderer) RenderToPNG(w io.Writer, proj *Projection) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height, proj)
	return png.Encode(w, rast)
}

func (r *OverlayRenderer) size() (float64, float64) {
	if !r.Metrics.Valid() {
		return 1, 1
	}
	return r.Metrics.DisplayWidth, r.Metrics.DisplayHeight
}

// toCanvas maps a natural raster pixel to canvas coordinates. Canvas y
// grows upward, raster rows grow downward.
func (r *OverlayRenderer) toCanvas(p Point, height float64) (float64, float64) {
	sx, sy := 1.0, 1.0
	if r.Metrics.Valid() {
		sx = r.Metrics.DisplayWidth / r.Metrics.NaturalWidth
		sy = r.Metrics.DisplayHeight / r.Metrics.NaturalHeight
	}
	return p.X * sx, height - p.Y*sy
}

func (r *OverlayRenderer) ringPath(ring Ring, height float64) *canvas.Path {
	cp := &canvas.Path{}
	for i, pt := range ring.Open() {
		x, y := r.toCanvas(pt, height)
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	cp.Close()
	return cp
}

func (r *OverlayRenderer) renderToCanvas(renderer canvasRenderer, width, height float64, proj *Projection) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Style.Background)}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if !r.Shell.IsEmpty() {
		// Floor patch: the inner ring, filled.
		floorStyle := canvas.DefaultStyle
		floorStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Style.Floor)}
		floorStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		renderer.RenderPath(r.ringPath(r.Shell.Shell.Inner, height), floorStyle, canvas.Identity)

		wallStyle := canvas.DefaultStyle
		wallStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		wallStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Style.Wall)}
		wallStyle.StrokeWidth = r.Style.WallWidth
		for _, ring := range []Ring{r.Shell.Shell.Outer, r.Shell.Shell.Inner} {
			if len(ring.Open()) >= 2 {
				renderer.RenderPath(r.ringPath(ring, height), wallStyle, canvas.Identity)
			}
		}
	}

	obstacleStyle := canvas.DefaultStyle
	obstacleStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Style.Obstacle)}
	obstacleStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, poly := range r.Obstacles {
		if len(poly.Open()) >= 3 {
			renderer.RenderPath(r.ringPath(poly, height), obstacleStyle, canvas.Identity)
		}
	}

	if proj != nil {
		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Style.Marker)}
		markerStyle.Stroke = canvas.Paint{Color: canvas.White}
		markerStyle.StrokeWidth = 1
		marker := canvas.Circle(r.Style.MarkerRadius).Translate(proj.Overlay.X, height-proj.Overlay.Y)
		renderer.RenderPath(marker, markerStyle, canvas.Identity)
	}
}
