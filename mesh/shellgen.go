package mesh

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"gopkg.in/yaml.v3"

	"github.com/kwv/slamview/internal/logger"
)

// Shell generator defaults.
const (
	DefaultCloseKernel     = 5
	DefaultCloseIterations = 2
	DefaultAreaMinRatio    = 0.01
	DefaultBorderTol       = 3
	DefaultApproxEpsRatio  = 0.012
	DefaultInnerOffset     = 5
)

// ShellGenOptions tunes the wall-shell generator.
type ShellGenOptions struct {
	// Rotate90 turns the raster a quarter turn counter-clockwise first and
	// records rotate90 in the metadata.
	Rotate90 bool
	// Explicit emits {outer, inner} for the largest contour instead of the
	// legacy polygon list. The inner ring is the outer region eroded by
	// InnerOffset pixels.
	Explicit bool

	CloseKernel     int
	CloseIterations int
	BorderTol       int
	AreaMinRatio    float64
	ApproxEpsRatio  float64
	InnerOffset     int
}

// DefaultShellGenOptions returns the generator defaults.
func DefaultShellGenOptions() ShellGenOptions {
	return ShellGenOptions{
		CloseKernel:     DefaultCloseKernel,
		CloseIterations: DefaultCloseIterations,
		BorderTol:       DefaultBorderTol,
		AreaMinRatio:    DefaultAreaMinRatio,
		ApproxEpsRatio:  DefaultApproxEpsRatio,
		InnerOffset:     DefaultInnerOffset,
	}
}

// ROSMapMeta is a ROS map_server YAML document.
type ROSMapMeta struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
}

// ParseROSMapYAML reads a ROS map YAML document. A missing origin is
// [0, 0, 0].
func ParseROSMapYAML(data []byte) (*ROSMapMeta, error) {
	var meta ROSMapMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing map yaml: %w", err)
	}
	if meta.Resolution <= 0 {
		return nil, fmt.Errorf("map yaml: resolution must be positive, got %v", meta.Resolution)
	}
	switch len(meta.Origin) {
	case 0:
		meta.Origin = []float64{0, 0, 0}
	case 2, 3:
	default:
		return nil, fmt.Errorf("map yaml: origin must have 2 or 3 values, got %d", len(meta.Origin))
	}
	return &meta, nil
}

// OriginValue returns the map origin. A zero yaw is treated as no heading.
func (m *ROSMapMeta) OriginValue() Origin {
	o := Origin{X0: m.Origin[0], Y0: m.Origin[1]}
	if len(m.Origin) == 3 && m.Origin[2] != 0 {
		o.Theta = m.Origin[2]
		o.HasHeading = true
	}
	return o
}

// ShellResult is the generator output.
type ShellResult struct {
	// Polygons are the simplified external contours, largest first.
	Polygons []Ring
	// Shell is set when ShellGenOptions.Explicit was requested.
	Shell *BoundaryPolygonSet
	Meta  GridMapAsset
	// Raster is the input after any rotation, matching the polygon
	// coordinates.
	Raster *RasterBuffer
}

type shellMetaDoc struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"`
	Origin     Origin  `json:"origin"`
	Rotate90   bool    `json:"rotate90"`
}

// WallShellJSON encodes the boundary document.
func (r *ShellResult) WallShellJSON() ([]byte, error) {
	if r.Shell != nil {
		return json.Marshal(r.Shell)
	}
	return json.Marshal(r.Polygons)
}

// MetaJSON encodes the metadata document.
func (r *ShellResult) MetaJSON() ([]byte, error) {
	doc := shellMetaDoc{
		Width:      r.Meta.Width,
		Height:     r.Meta.Height,
		Resolution: r.Meta.Resolution,
		Rotate90:   r.Meta.Rotate90,
	}
	if r.Meta.Origin != nil {
		doc.Origin = *r.Meta.Origin
	}
	return json.MarshalIndent(doc, "", "  ")
}

// WriteFiles writes wall_shell.json, meta.json and the raster as map.pgm
// into dir, the layout DefaultProfile expects.
func (r *ShellResult) WriteFiles(dir string) error {
	shell, err := r.WallShellJSON()
	if err != nil {
		return fmt.Errorf("encoding wall shell: %w", err)
	}
	meta, err := r.MetaJSON()
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultWallsAsset), shell, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", DefaultWallsAsset, err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultMetaAsset), meta, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", DefaultMetaAsset, err)
	}
	if r.Raster != nil {
		if err := os.WriteFile(filepath.Join(dir, DefaultRasterAsset), r.Raster.EncodePGM(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", DefaultRasterAsset, err)
		}
	}
	return nil
}

// GenerateShell extracts wall polygons from an occupancy raster. Walls are
// taken to be the minority class after Otsu thresholding. Contours touching
// all four image borders and contours smaller than AreaMinRatio of the
// largest are dropped; the rest are simplified with Douglas-Peucker.
func GenerateShell(raster *RasterBuffer, ros *ROSMapMeta, opts ShellGenOptions) (*ShellResult, error) {
	if raster == nil || raster.Width == 0 || raster.Height == 0 {
		return nil, fmt.Errorf("generate shell: empty raster")
	}
	if ros == nil {
		return nil, fmt.Errorf("generate shell: map yaml is required")
	}

	if opts.Rotate90 {
		raster = raster.RotateCCW90()
	}
	work := raster
	if ros.Negate != 0 {
		negated := *raster
		negated.Pixels = make([]uint8, len(raster.Pixels))
		for i, v := range raster.Pixels {
			negated.Pixels[i] = 255 - v
		}
		work = &negated
	}

	mask := binarize(work)
	mask = mask.close(opts.CloseKernel, opts.CloseIterations)

	contours := mask.externalContours()
	if len(contours) == 0 {
		return nil, fmt.Errorf("generate shell: no wall contours found")
	}
	contours = dropFrameContours(contours, raster.Width, raster.Height, opts.BorderTol)
	contours = dropSmallContours(contours, opts.AreaMinRatio)
	if len(contours) == 0 {
		return nil, fmt.Errorf("generate shell: every contour was filtered out")
	}

	origin := ros.OriginValue()
	result := &ShellResult{
		Raster: raster,
		Meta: GridMapAsset{
			Width:      raster.Width,
			Height:     raster.Height,
			Resolution: ros.Resolution,
			Origin:     &origin,
			Rotate90:   opts.Rotate90,
		},
	}
	for _, c := range contours {
		result.Polygons = append(result.Polygons, approxPolygon(c, opts.ApproxEpsRatio))
	}

	if opts.Explicit {
		inner := innerOffsetContour(contours[0], raster.Width, raster.Height, opts.InnerOffset)
		if len(inner) < 3 {
			inner = contours[0]
		}
		result.Shell = &BoundaryPolygonSet{
			Outer: result.Polygons[0],
			Inner: approxPolygon(inner, opts.ApproxEpsRatio),
		}
	}

	logger.Sugar.Infof("[SHELLGEN] %dx%d raster: %d polygons kept", raster.Width, raster.Height, len(result.Polygons))
	return result, nil
}

// approxPolygon simplifies a closed contour with tolerance ratio*perimeter.
func approxPolygon(c Ring, ratio float64) Ring {
	if len(c) < 3 || ratio <= 0 {
		return c.Clone()
	}
	ls := make(orb.LineString, 0, len(c)+1)
	for _, p := range c {
		ls = append(ls, orb.Point{p.X, p.Y})
	}
	ls = append(ls, ls[0])

	simplified, ok := simplify.DouglasPeucker(ratio * Perimeter(c)).Simplify(ls.Clone()).(orb.LineString)
	if !ok || len(simplified) < 4 {
		return c.Clone()
	}
	return RingFromOrb(orb.Ring(simplified)).Open()
}

func contourBounds(c Ring) (minX, minY, maxX, maxY float64) {
	b := c.Bound()
	return b.Min[0], b.Min[1], b.Max[0], b.Max[1]
}

// dropFrameContours removes contours whose bounding box reaches within tol
// of all four image edges. If that removes everything the input is kept.
func dropFrameContours(contours []Ring, width, height, tol int) []Ring {
	var kept []Ring
	for _, c := range contours {
		minX, minY, maxX, maxY := contourBounds(c)
		t := float64(tol)
		if minX <= t && minY <= t &&
			float64(width)-(maxX+1) <= t && float64(height)-(maxY+1) <= t {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return contours
	}
	return kept
}

// dropSmallContours keeps contours larger than ratio times the largest area
// and sorts them largest first.
func dropSmallContours(contours []Ring, ratio float64) []Ring {
	areas := make([]float64, len(contours))
	maxArea := 0.0
	for i, c := range contours {
		areas[i] = math.Abs(SignedArea(c))
		maxArea = math.Max(maxArea, areas[i])
	}

	type entry struct {
		ring Ring
		area float64
	}
	var kept []entry
	for i, c := range contours {
		if areas[i] > ratio*maxArea {
			kept = append(kept, entry{c, areas[i]})
		}
	}
	// Insertion sort keeps equal areas in scan order.
	for i := 1; i < len(kept); i++ {
		for j := i; j > 0 && kept[j].area > kept[j-1].area; j-- {
			kept[j], kept[j-1] = kept[j-1], kept[j]
		}
	}
	out := make([]Ring, len(kept))
	for i, e := range kept {
		out[i] = e.ring
	}
	return out
}

// innerOffsetContour fills contour c, erodes the region by a disk of radius
// offset and traces the first external contour of what is left.
func innerOffsetContour(c Ring, width, height, offset int) Ring {
	region := newBitmap(width, height)
	minX, minY, maxX, maxY := contourBounds(c)
	for y := int(minY); y <= int(maxY); y++ {
		for x := int(minX); x <= int(maxX); x++ {
			if PointInPolygon(Point{X: float64(x), Y: float64(y)}, c) {
				region.set(x, y)
			}
		}
	}
	for _, p := range c {
		region.set(int(p.X), int(p.Y))
	}

	eroded := region.erodeDisk(offset)
	inner := eroded.externalContours()
	if len(inner) == 0 {
		return nil
	}
	return inner[0]
}

// ---------------------------------------------------------------------------
// binary image helpers
// ---------------------------------------------------------------------------

type bitmap struct {
	w, h int
	px   []bool
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, px: make([]bool, w*h)}
}

func (b *bitmap) in(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.w && y < b.h
}

func (b *bitmap) get(x, y int) bool {
	return b.in(x, y) && b.px[y*b.w+x]
}

func (b *bitmap) set(x, y int) {
	if b.in(x, y) {
		b.px[y*b.w+x] = true
	}
}

func (b *bitmap) count() int {
	n := 0
	for _, v := range b.px {
		if v {
			n++
		}
	}
	return n
}

// otsuThreshold returns the threshold t maximizing between-class variance,
// where samples > t form the upper class.
func otsuThreshold(pixels []uint8) uint8 {
	var hist [256]int
	for _, v := range pixels {
		hist[v]++
	}
	total := float64(len(pixels))
	sum := 0.0
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB, wB  float64
		best      uint8
		bestScore = -1.0
	)
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		score := wB * wF * (mB - mF) * (mB - mF)
		if score > bestScore {
			bestScore, best = score, uint8(t)
		}
	}
	return best
}

// binarize thresholds with Otsu and marks the minority class as foreground.
func binarize(r *RasterBuffer) *bitmap {
	t := otsuThreshold(r.Pixels)
	b := newBitmap(r.Width, r.Height)
	for i, v := range r.Pixels {
		b.px[i] = v > t
	}
	if fg := b.count(); fg > len(b.px)-fg {
		for i := range b.px {
			b.px[i] = !b.px[i]
		}
	}
	return b
}

// close is a morphological closing with a square kernel: iterations
// dilations followed by as many erosions. Pixels outside the image never
// dilate in and never erode away.
func (b *bitmap) close(kernel, iterations int) *bitmap {
	if kernel <= 1 || iterations <= 0 {
		return b
	}
	out := b
	for range iterations {
		out = out.morph(kernel, true)
	}
	for range iterations {
		out = out.morph(kernel, false)
	}
	return out
}

// morph runs a separable square dilation (dilate) or erosion.
func (b *bitmap) morph(kernel int, dilate bool) *bitmap {
	lo := -(kernel / 2)
	hi := lo + kernel - 1
	pass := func(src *bitmap, dx, dy int) *bitmap {
		dst := newBitmap(src.w, src.h)
		for y := 0; y < src.h; y++ {
			for x := 0; x < src.w; x++ {
				v := !dilate
				for k := lo; k <= hi; k++ {
					nx, ny := x+k*dx, y+k*dy
					if !src.in(nx, ny) {
						continue
					}
					if src.px[ny*src.w+nx] == dilate {
						v = dilate
						break
					}
				}
				dst.px[y*dst.w+x] = v
			}
		}
		return dst
	}
	return pass(pass(b, 1, 0), 0, 1)
}

// erodeDisk keeps pixels whose whole radius-r disk is set. Pixels outside
// the image count as unset.
func (b *bitmap) erodeDisk(r int) *bitmap {
	if r <= 0 {
		return b
	}
	var offsets [][2]int
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}
	out := newBitmap(b.w, b.h)
	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			if !b.px[y*b.w+x] {
				continue
			}
			keep := true
			for _, o := range offsets {
				if !b.get(x+o[0], y+o[1]) {
					keep = false
					break
				}
			}
			out.px[y*b.w+x] = keep
		}
	}
	return out
}

// mooreDirs lists the eight neighbours clockwise (y down), starting east.
var mooreDirs = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

func mooreIndex(dx, dy int) int {
	for i, d := range mooreDirs {
		if d[0] == dx && d[1] == dy {
			return i
		}
	}
	return -1
}

// externalContours traces the outer boundary of every 8-connected
// foreground component that is not enclosed by another component, in scan
// order of each component's first pixel.
func (b *bitmap) externalContours() []Ring {
	outside := b.outsideBackground()
	labeled := make([]bool, len(b.px))
	var contours []Ring

	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			i := y*b.w + x
			if !b.px[i] || labeled[i] {
				continue
			}
			b.flood(x, y, labeled)
			// The first pixel of a component always has background to its
			// west; the component is external when that background is.
			if x > 0 && !outside[i-1] {
				continue
			}
			contours = append(contours, b.traceOuter(x, y))
		}
	}
	return contours
}

// outsideBackground marks background pixels 4-connected to the image edge.
func (b *bitmap) outsideBackground() []bool {
	outside := make([]bool, len(b.px))
	var stack [][2]int
	push := func(x, y int) {
		if !b.in(x, y) {
			return
		}
		i := y*b.w + x
		if b.px[i] || outside[i] {
			return
		}
		outside[i] = true
		stack = append(stack, [2]int{x, y})
	}
	for x := 0; x < b.w; x++ {
		push(x, 0)
		push(x, b.h-1)
	}
	for y := 0; y < b.h; y++ {
		push(0, y)
		push(b.w-1, y)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		push(p[0]+1, p[1])
		push(p[0]-1, p[1])
		push(p[0], p[1]+1)
		push(p[0], p[1]-1)
	}
	return outside
}

// flood labels the 8-connected component containing (x, y).
func (b *bitmap) flood(x, y int, labeled []bool) {
	stack := [][2]int{{x, y}}
	labeled[y*b.w+x] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range mooreDirs {
			nx, ny := p[0]+d[0], p[1]+d[1]
			if !b.get(nx, ny) {
				continue
			}
			if i := ny*b.w + nx; !labeled[i] {
				labeled[i] = true
				stack = append(stack, [2]int{nx, ny})
			}
		}
	}
}

// traceOuter follows a component boundary with Moore-neighbour tracing,
// starting from its first pixel in scan order. It stops when the start
// pixel is about to repeat its first move.
func (b *bitmap) traceOuter(sx, sy int) Ring {
	contour := Ring{{X: float64(sx), Y: float64(sy)}}

	cx, cy := sx, sy
	back := 4 // entered from the west
	firstMove := -1
	for steps := 0; steps < 4*len(b.px)+8; steps++ {
		next := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			if b.get(cx+mooreDirs[d][0], cy+mooreDirs[d][1]) {
				next = d
				break
			}
		}
		if next < 0 {
			return contour // isolated pixel
		}
		if cx == sx && cy == sy {
			if firstMove == next {
				break
			}
			if firstMove < 0 {
				firstMove = next
			}
		}

		// The probe just before next is background; it becomes the
		// backtrack point, seen from the new pixel.
		prev := (next + 7) % 8
		px, py := cx+mooreDirs[prev][0], cy+mooreDirs[prev][1]
		cx, cy = cx+mooreDirs[next][0], cy+mooreDirs[next][1]
		back = mooreIndex(px-cx, py-cy)

		if cx == sx && cy == sy {
			continue
		}
		contour = append(contour, Point{X: float64(cx), Y: float64(cy)})
	}
	return contour
}
