package mesh

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	poly2tri "github.com/ByteArena/poly2tri-go"

	"github.com/kwv/slamview/internal/logger"
)

const (
	// DefaultWallHeight is the extrusion depth of the wall solid in scene units.
	DefaultWallHeight = 12.0
	// FloorOffset lifts the floor patch above the wall base plane.
	FloorOffset = 0.1
	// DefaultMeshCacheEntries bounds a MeshCache created with a zero size.
	DefaultMeshCacheEntries = 8
)

// Geometry is an indexed triangle list.
type Geometry struct {
	Vertices []Vec3 `json:"vertices"`
	Indices  []int  `json:"indices"`
}

// TriangleCount returns the number of triangles.
func (g *Geometry) TriangleCount() int {
	return len(g.Indices) / 3
}

// Triangle returns the corners of triangle i.
func (g *Geometry) Triangle(i int) (Vec3, Vec3, Vec3) {
	return g.Vertices[g.Indices[3*i]], g.Vertices[g.Indices[3*i+1]], g.Vertices[g.Indices[3*i+2]]
}

// PlanarArea sums the projected area of the triangles lying flat at height z.
func (g *Geometry) PlanarArea(z float64) float64 {
	const tol = 1e-9
	total := 0.0
	for i := 0; i < g.TriangleCount(); i++ {
		a, b, c := g.Triangle(i)
		if math.Abs(a.Z-z) > tol || math.Abs(b.Z-z) > tol || math.Abs(c.Z-z) > tol {
			continue
		}
		total += TriangleArea(Point{a.X, a.Y}, Point{b.X, b.Y}, Point{c.X, c.Y})
	}
	return total
}

func (g *Geometry) addTriangle(a, b, c Vec3) {
	base := len(g.Vertices)
	g.Vertices = append(g.Vertices, a, b, c)
	g.Indices = append(g.Indices, base, base+1, base+2)
}

// WallMesh is the extruded room shell plus its floor patch, in scene
// coordinates (image y negated).
type WallMesh struct {
	Outer      Ring     `json:"outer"`
	Hole       Ring     `json:"hole"`
	Floor      Ring     `json:"floorRing"`
	Height     float64  `json:"height"`
	Wall       Geometry `json:"wall"`
	FloorPatch Geometry `json:"floor"`
}

// FootprintArea is the wall solid's ground area: |outer| - |inner|.
func (m *WallMesh) FootprintArea() float64 {
	return math.Abs(SignedArea(m.Outer)) - math.Abs(SignedArea(m.Hole))
}

// BuildWallMesh extrudes the shell's outer ring, with the inner ring cut out,
// to height and adds a floor patch over the inner ring. An empty shell, or one
// whose rings cannot be triangulated, yields no mesh and no error.
func BuildWallMesh(shell ShellVariant, height float64) (*WallMesh, error) {
	if shell.IsEmpty() {
		return nil, nil
	}
	if height <= 0 {
		return nil, fmt.Errorf("wall height must be positive, got %v", height)
	}

	outer := EnsureCCW(ToScene(shell.Shell.Outer.Open()))
	hole := EnsureCW(ToScene(shell.Shell.Inner.Open()))
	floor := EnsureCCW(ToScene(shell.Shell.Inner.Open()))
	if !enclosesArea(outer) || !enclosesArea(hole) {
		logger.Sugar.Warnf("[MESH] shell collapses to a ring without area, skipping")
		return nil, nil
	}

	m := &WallMesh{Outer: outer, Hole: hole, Floor: floor, Height: height}

	caps, err := triangulate(outer, hole)
	if err != nil {
		logger.Sugar.Warnf("[MESH] skipping shell, wall caps: %v", err)
		return nil, nil
	}
	for _, t := range caps {
		m.Wall.addTriangle(lift(t[0], height), lift(t[1], height), lift(t[2], height))
		m.Wall.addTriangle(lift(t[0], 0), lift(t[2], 0), lift(t[1], 0))
	}
	addSides(&m.Wall, outer, height)
	addSides(&m.Wall, hole, height)

	floorTris, err := triangulate(floor, nil)
	if err != nil {
		logger.Sugar.Warnf("[MESH] skipping shell, floor: %v", err)
		return nil, nil
	}
	for _, t := range floorTris {
		m.FloorPatch.addTriangle(lift(t[0], FloorOffset), lift(t[1], FloorOffset), lift(t[2], FloorOffset))
	}

	return m, nil
}

func lift(p Point, z float64) Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: z}
}

// addSides adds one outward-facing quad per ring edge. Outward is to the
// right of the direction of travel, which holds for a CCW outer ring and a CW
// hole alike.
func addSides(g *Geometry, ring Ring, height float64) {
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		a0, b0 := lift(a, 0), lift(b, 0)
		a1, b1 := lift(a, height), lift(b, height)
		g.addTriangle(a0, b0, b1)
		g.addTriangle(a0, b1, a1)
	}
}

// triangulate runs a constrained Delaunay triangulation of contour minus
// hole. Every returned triangle is CCW.
func triangulate(contour, hole Ring) (tris [][3]Point, err error) {
	defer func() {
		// poly2tri reports degenerate input (repeated or collinear points) by panicking.
		if r := recover(); r != nil {
			tris, err = nil, fmt.Errorf("degenerate polygon: %v", r)
		}
	}()

	sc := poly2tri.NewSweepContext(toSweepPoints(contour), false)
	if len(hole) >= 3 {
		sc.AddHole(toSweepPoints(hole))
	}
	sc.Triangulate()

	for _, t := range sc.GetTriangles() {
		a := Point{X: t.Points[0].X, Y: t.Points[0].Y}
		b := Point{X: t.Points[1].X, Y: t.Points[1].Y}
		c := Point{X: t.Points[2].X, Y: t.Points[2].Y}
		if SignedArea(Ring{a, b, c}) < 0 {
			b, c = c, b
		}
		tris = append(tris, [3]Point{a, b, c})
	}
	if len(tris) == 0 {
		return nil, fmt.Errorf("no triangles produced")
	}
	return tris, nil
}

func toSweepPoints(r Ring) []*poly2tri.Point {
	pts := make([]*poly2tri.Point, len(r))
	for i, p := range r {
		pts[i] = poly2tri.NewPoint(p.X, p.Y)
	}
	return pts
}

// MeshCache memoizes BuildWallMesh on the exact (outer, inner, height)
// triple. Returned meshes are shared and must be treated as read-only.
type MeshCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[uint64]meshCacheEntry
	order      []uint64
	hits       uint64
	misses     uint64
}

type meshCacheEntry struct {
	shell  BoundaryPolygonSet
	height float64
	mesh   *WallMesh
}

// NewMeshCache creates a cache holding at most maxEntries meshes; the oldest
// entry is evicted first.
func NewMeshCache(maxEntries int) *MeshCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMeshCacheEntries
	}
	return &MeshCache{
		maxEntries: maxEntries,
		entries:    make(map[uint64]meshCacheEntry),
	}
}

// Get returns the cached mesh for shell and height, building it on a miss.
func (c *MeshCache) Get(shell ShellVariant, height float64) (*WallMesh, error) {
	if shell.IsEmpty() {
		return nil, nil
	}
	key := ShellKey(shell.Shell, height)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.height == height && sameShell(e.shell, shell.Shell) {
		c.hits++
		c.mu.Unlock()
		return e.mesh, nil
	}
	c.misses++
	c.mu.Unlock()

	m, err := BuildWallMesh(shell, height)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = meshCacheEntry{
		shell:  BoundaryPolygonSet{Outer: shell.Shell.Outer.Clone(), Inner: shell.Shell.Inner.Clone()},
		height: height,
		mesh:   m,
	}
	for len(c.order) > c.maxEntries {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	return m, nil
}

// Stats returns hit and miss counts.
func (c *MeshCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached meshes.
func (c *MeshCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ShellKey hashes the exact coordinates of a shell and a height.
func ShellKey(shell BoundaryPolygonSet, height float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for _, r := range []Ring{shell.Outer, shell.Inner} {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(r)))
		h.Write(buf[:])
		for _, p := range r {
			writeFloat(p.X)
			writeFloat(p.Y)
		}
	}
	writeFloat(height)
	return h.Sum64()
}

func sameShell(a, b BoundaryPolygonSet) bool {
	return sameRing(a.Outer, b.Outer) && sameRing(a.Inner, b.Inner)
}

func sameRing(a, b Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
