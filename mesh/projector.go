package mesh

import (
	"sync"
	"time"
)

// DefaultMarkerHeight holds the 3D pose marker just above the floor patch.
const DefaultMarkerHeight = 0.6

// Projection is one pose projected into both views from a single snapshot.
type Projection struct {
	Pose      PoseSample     `json:"pose"`
	Pixel     Point          `json:"pixel"`
	Overlay   Point          `json:"overlay"`
	World     Vec3           `json:"world"`
	Metrics   DisplayMetrics `json:"metrics"`
	Seq       uint64         `json:"seq"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Project maps pose through frame into natural pixels, display pixels and
// the 3D scene. ok is false when any input is missing; there is no fallback
// position.
func Project(frame *Frame, pose *PoseSample, metrics DisplayMetrics, markerHeight float64) (Projection, bool) {
	if frame == nil || pose == nil || !pose.Valid() || !metrics.Valid() {
		return Projection{}, false
	}
	px := frame.MapToPixel(pose.X, pose.Y)
	return Projection{
		Pose:  *pose,
		Pixel: px,
		Overlay: Point{
			X: px.X * metrics.DisplayWidth / metrics.NaturalWidth,
			Y: px.Y * metrics.DisplayHeight / metrics.NaturalHeight,
		},
		World:   Vec3{X: px.X, Y: -px.Y, Z: markerHeight},
		Metrics: metrics,
	}, true
}

// ProjectionListener receives every recomputed projection. visible is false
// when the marker should be hidden.
type ProjectionListener func(p Projection, visible bool)

// PoseProjector owns the latest pose, the display metrics and the resolved
// frame. Every mutation replaces one of them wholesale and recomputes the
// projection from a single snapshot of all three.
type PoseProjector struct {
	// notifyMu serializes mutations with listener delivery so listeners see
	// projections in Seq order.
	notifyMu sync.Mutex

	mu           sync.RWMutex
	frame        *Frame
	pose         *PoseSample
	metrics      DisplayMetrics
	markerHeight float64
	current      Projection
	visible      bool
	seq          uint64
	listeners    map[int]ProjectionListener
	nextID       int
}

// NewPoseProjector creates a projector. A non-positive markerHeight uses
// DefaultMarkerHeight.
func NewPoseProjector(markerHeight float64) *PoseProjector {
	if markerHeight <= 0 {
		markerHeight = DefaultMarkerHeight
	}
	return &PoseProjector{
		markerHeight: markerHeight,
		listeners:    make(map[int]ProjectionListener),
	}
}

// UpdatePose replaces the pose sample and reprojects.
func (p *PoseProjector) UpdatePose(sample PoseSample) (Projection, bool) {
	return p.mutate(func() { p.pose = &sample })
}

// UpdateDisplay replaces the display metrics and reprojects the last pose.
func (p *PoseProjector) UpdateDisplay(metrics DisplayMetrics) (Projection, bool) {
	return p.mutate(func() { p.metrics = metrics })
}

// SetFrame replaces the resolved frame. nil clears it and hides the marker.
func (p *PoseProjector) SetFrame(frame *Frame) (Projection, bool) {
	return p.mutate(func() {
		if frame == nil {
			p.frame = nil
			return
		}
		f := *frame
		p.frame = &f
	})
}

// Reset installs a new frame and metrics and forgets the previous pose, as
// when a different map is selected.
func (p *PoseProjector) Reset(frame *Frame, metrics DisplayMetrics) (Projection, bool) {
	return p.mutate(func() {
		p.pose = nil
		p.metrics = metrics
		p.frame = nil
		if frame != nil {
			f := *frame
			p.frame = &f
		}
	})
}

func (p *PoseProjector) mutate(apply func()) (Projection, bool) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	apply()
	proj, ok := Project(p.frame, p.pose, p.metrics, p.markerHeight)
	p.seq++
	proj.Seq = p.seq
	if ok {
		proj.UpdatedAt = time.Now()
	}
	p.current, p.visible = proj, ok
	listeners := make([]ProjectionListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(proj, ok)
	}
	return proj, ok
}

// Current returns the latest projection and whether a marker is visible.
func (p *PoseProjector) Current() (Projection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.visible
}

// Snapshot is the display metrics and the visible projection read together.
// When Projection is set its Metrics equal Metrics.
type Snapshot struct {
	Metrics    DisplayMetrics
	Projection *Projection
}

// Snapshot returns the metrics and projection under one lock, so a view
// drawn from it never mixes two display sizes.
func (p *PoseProjector) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{Metrics: p.metrics}
	if p.visible {
		proj := p.current
		s.Projection = &proj
	}
	return s
}

// Pose returns the latest pose sample, if any.
func (p *PoseProjector) Pose() (PoseSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pose == nil {
		return PoseSample{}, false
	}
	return *p.pose, true
}

// Metrics returns the current display metrics.
func (p *PoseProjector) Metrics() DisplayMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Frame returns a copy of the resolved frame, if any.
func (p *PoseProjector) Frame() (Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return Frame{}, false
	}
	return *p.frame, true
}

// Subscribe registers fn for every future projection. Listeners run on the
// mutating goroutine and must not call UpdatePose, UpdateDisplay, SetFrame or
// Reset. The returned function unregisters fn.
func (p *PoseProjector) Subscribe(fn ProjectionListener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}
