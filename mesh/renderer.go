package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterStyle holds the colors used when drawing over the raster.
type RasterStyle struct {
	Marker       color.RGBA
	MarkerRadius int
	Outline      color.RGBA
	Hole         color.RGBA
	Obstacle     color.RGBA
	Label        color.RGBA
}

// DefaultRasterStyle returns the style used by /map.png.
func DefaultRasterStyle() RasterStyle {
	return RasterStyle{
		Marker:       parseHexColor("#E53935"),
		MarkerRadius: 4,
		Outline:      parseHexColor("#1E88E5"),
		Hole:         parseHexColor("#43A047"),
		Obstacle:     parseHexColor("#FB8C00"),
		Label:        color.RGBA{0, 0, 0, 255},
	}
}

// RasterRenderer draws the decoded raster at its natural size with the
// boundary outline, obstacle outlines and the pose marker on top.
type RasterRenderer struct {
	Raster    *RasterBuffer
	Shell     ShellVariant
	Obstacles []Ring
	Style     RasterStyle
}

// NewRasterRenderer creates a renderer for a loaded profile.
func NewRasterRenderer(assets *MapAssets) *RasterRenderer {
	return &RasterRenderer{
		Raster:    assets.Raster,
		Shell:     assets.Shell,
		Obstacles: assets.Obstacles,
		Style:     DefaultRasterStyle(),
	}
}

// Render returns the composed image. proj may be nil when no marker is
// visible.
func (r *RasterRenderer) Render(proj *Projection) *image.RGBA {
	if r.Raster == nil {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Raster.Width, r.Raster.Height))
	draw.Draw(img, img.Bounds(), r.Raster.Image(), image.Point{}, draw.Src)

	if !r.Shell.IsEmpty() {
		drawRing(img, r.Shell.Shell.Outer, r.Style.Outline)
		drawRing(img, r.Shell.Shell.Inner, r.Style.Hole)
	}
	for _, poly := range r.Obstacles {
		drawRing(img, poly, r.Style.Obstacle)
	}

	if proj != nil {
		cx, cy := int(math.Round(proj.Pixel.X)), int(math.Round(proj.Pixel.Y))
		drawLabel(img, cx, cy, r.Style.MarkerRadius, fmt.Sprintf("(%.2f, %.2f)", proj.Pose.X, proj.Pose.Y), r.Style.Label)
		drawCircle(img, cx, cy, r.Style.MarkerRadius+1, color.RGBA{255, 255, 255, 255})
		drawCircle(img, cx, cy, r.Style.MarkerRadius, r.Style.Marker)
	}
	return img
}

// EncodePNG renders and writes the image as PNG.
func (r *RasterRenderer) EncodePNG(w io.Writer, proj *Projection) error {
	if err := png.Encode(w, r.Render(proj)); err != nil {
		return fmt.Errorf("encoding raster png: %w", err)
	}
	return nil
}

// drawRing strokes a closed ring one pixel wide.
func drawRing(img *image.RGBA, ring Ring, c color.RGBA) {
	if len(ring) < 2 {
		return
	}
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		drawLine(img, int(math.Round(a.X)), int(math.Round(a.Y)), int(math.Round(b.X)), int(math.Round(b.Y)), c)
	}
}

// drawLine is Bresenham's line algorithm, clipped to the image.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	bounds := img.Bounds()
	for {
		if (image.Point{X: x0, Y: y0}).In(bounds) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				if p := (image.Point{X: cx + dx, Y: cy + dy}); p.In(bounds) {
					img.SetRGBA(p.X, p.Y, c)
				}
			}
		}
	}
}

// drawLabel writes text beside the marker, flipping to the other side when
// it would run off the image.
func drawLabel(img *image.RGBA, cx, cy, radius int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	x := cx + radius + 3
	if x+width > img.Bounds().Max.X {
		x = cx - radius - 3 - width
	}
	y := cy + face.Ascent/2
	drawText(img, max(x, 0), max(y, face.Ascent), text, c)
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	// Default to red if parsing fails
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
