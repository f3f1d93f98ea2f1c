package mesh

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityFrame maps map meters straight to pixels.
func identityFrame() *Frame {
	f := NewFrame(FrameAffine, Identity())
	return &f
}

func TestProject_Overlay(t *testing.T) {
	metrics := DisplayMetrics{NaturalWidth: 200, NaturalHeight: 100, DisplayWidth: 100, DisplayHeight: 50}
	p, ok := Project(identityFrame(), &PoseSample{X: 50, Y: 50}, metrics, DefaultMarkerHeight)
	require.True(t, ok)

	assert.Equal(t, Point{X: 50, Y: 50}, p.Pixel)
	assert.Equal(t, Point{X: 25, Y: 25}, p.Overlay)
	assert.Equal(t, Vec3{X: 50, Y: -50, Z: 0.6}, p.World)
}

func TestProject_NonUniformScale(t *testing.T) {
	metrics := DisplayMetrics{NaturalWidth: 100, NaturalHeight: 100, DisplayWidth: 300, DisplayHeight: 50}
	p, ok := Project(identityFrame(), &PoseSample{X: 10, Y: 10}, metrics, 1)
	require.True(t, ok)
	assert.Equal(t, Point{X: 30, Y: 5}, p.Overlay)
}

func TestProject_MissingInputs(t *testing.T) {
	metrics := DisplayMetrics{NaturalWidth: 1, NaturalHeight: 1, DisplayWidth: 1, DisplayHeight: 1}
	pose := &PoseSample{X: 1, Y: 1}

	tests := []struct {
		name    string
		frame   *Frame
		pose    *PoseSample
		metrics DisplayMetrics
	}{
		{"no frame", nil, pose, metrics},
		{"no pose", identityFrame(), nil, metrics},
		{"zero metrics", identityFrame(), pose, DisplayMetrics{}},
		{"zero natural width", identityFrame(), pose, DisplayMetrics{NaturalHeight: 1, DisplayWidth: 1, DisplayHeight: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Project(tt.frame, tt.pose, tt.metrics, 1)
			assert.False(t, ok)
			assert.Equal(t, Projection{}, p)
		})
	}
}

func TestPoseProjector_ResizeReprojectsLastPose(t *testing.T) {
	pp := NewPoseProjector(0)
	pp.SetFrame(identityFrame())
	pp.UpdateDisplay(DisplayMetrics{NaturalWidth: 200, NaturalHeight: 100, DisplayWidth: 200, DisplayHeight: 100})

	p, ok := pp.UpdatePose(PoseSample{X: 50, Y: 50})
	require.True(t, ok)
	assert.Equal(t, Point{X: 50, Y: 50}, p.Overlay)

	p, ok = pp.UpdateDisplay(DisplayMetrics{NaturalWidth: 200, NaturalHeight: 100, DisplayWidth: 100, DisplayHeight: 50})
	require.True(t, ok)
	assert.Equal(t, Point{X: 25, Y: 25}, p.Overlay)
	assert.Equal(t, PoseSample{X: 50, Y: 50}, p.Pose)

	cur, visible := pp.Current()
	assert.True(t, visible)
	assert.Equal(t, p, cur)
}

func TestPoseProjector_NoMarkerUntilComplete(t *testing.T) {
	pp := NewPoseProjector(0)

	_, ok := pp.UpdatePose(PoseSample{X: 1, Y: 2})
	assert.False(t, ok, "no frame yet")

	_, ok = pp.SetFrame(identityFrame())
	assert.False(t, ok, "no metrics yet")

	p, ok := pp.UpdateDisplay(NaturalMetrics(10, 10))
	assert.True(t, ok)
	assert.Equal(t, DefaultMarkerHeight, p.World.Z)

	_, ok = pp.SetFrame(nil)
	assert.False(t, ok)
	_, visible := pp.Current()
	assert.False(t, visible)
}

func TestPoseProjector_ResetForgetsPose(t *testing.T) {
	pp := NewPoseProjector(0)
	pp.Reset(identityFrame(), NaturalMetrics(10, 10))
	_, ok := pp.UpdatePose(PoseSample{X: 1, Y: 1})
	require.True(t, ok)

	_, ok = pp.Reset(identityFrame(), NaturalMetrics(20, 20))
	assert.False(t, ok)
	_, hasPose := pp.Pose()
	assert.False(t, hasPose)
	assert.Equal(t, NaturalMetrics(20, 20), pp.Metrics())
}

func TestPoseProjector_SetFrameCopies(t *testing.T) {
	pp := NewPoseProjector(0)
	f := identityFrame()
	pp.SetFrame(f)
	f.Mode = FramePlain

	got, ok := pp.Frame()
	require.True(t, ok)
	assert.Equal(t, FrameAffine, got.Mode)
}

func TestPoseProjector_Subscribe(t *testing.T) {
	pp := NewPoseProjector(0)
	pp.SetFrame(identityFrame())
	pp.UpdateDisplay(NaturalMetrics(100, 100))

	var got []Projection
	var visibility []bool
	cancel := pp.Subscribe(func(p Projection, visible bool) {
		got = append(got, p)
		visibility = append(visibility, visible)
	})

	pp.UpdatePose(PoseSample{X: 1, Y: 1})
	pp.UpdatePose(PoseSample{X: 2, Y: 2})
	pp.SetFrame(nil)
	cancel()
	pp.UpdatePose(PoseSample{X: 3, Y: 3})

	require.Len(t, got, 3)
	assert.Equal(t, []bool{true, true, false}, visibility)
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Equal(t, 2.0, got[1].Pixel.X)
}

func TestPoseProjector_ConcurrentUpdatesAreConsistent(t *testing.T) {
	pp := NewPoseProjector(0)
	pp.SetFrame(identityFrame())
	pp.UpdateDisplay(DisplayMetrics{NaturalWidth: 100, NaturalHeight: 100, DisplayWidth: 100, DisplayHeight: 100})

	var lastSeq uint64
	var mu sync.Mutex
	pp.Subscribe(func(p Projection, visible bool) {
		mu.Lock()
		defer mu.Unlock()
		assert.Greater(t, p.Seq, lastSeq)
		lastSeq = p.Seq
		if visible {
			// 2D and 3D come from the same pose and metrics.
			assert.Equal(t, p.Pixel.X*p.Metrics.DisplayWidth/p.Metrics.NaturalWidth, p.Overlay.X)
			assert.Equal(t, -p.Pixel.Y, p.World.Y)
			assert.Equal(t, p.Pose.X, p.Pixel.X)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				pp.UpdatePose(PoseSample{X: float64(i), Y: float64(j)})
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 1; j <= 50; j++ {
				pp.UpdateDisplay(DisplayMetrics{NaturalWidth: 100, NaturalHeight: 100, DisplayWidth: float64(j), DisplayHeight: float64(i + 1)})
			}
		}(i)
	}
	wg.Wait()
}

func TestPoseProjector_SnapshotPairsMetricsWithProjection(t *testing.T) {
	pp := NewPoseProjector(0)
	small := DisplayMetrics{NaturalWidth: 100, NaturalHeight: 100, DisplayWidth: 50, DisplayHeight: 50}
	large := DisplayMetrics{NaturalWidth: 100, NaturalHeight: 100, DisplayWidth: 400, DisplayHeight: 400}
	pp.Reset(identityFrame(), small)

	snap := pp.Snapshot()
	assert.Nil(t, snap.Projection)
	assert.Equal(t, small, snap.Metrics)

	pp.UpdatePose(PoseSample{X: 10, Y: 20})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				pp.UpdateDisplay(large)
			} else {
				pp.UpdateDisplay(small)
			}
		}
	}()

	for range 1000 {
		snap := pp.Snapshot()
		require.NotNil(t, snap.Projection)
		require.Equal(t, snap.Metrics, snap.Projection.Metrics)
		scale := snap.Metrics.DisplayWidth / snap.Metrics.NaturalWidth
		require.Equal(t, Point{X: 10 * scale, Y: 20 * scale}, snap.Projection.Overlay)
	}
	close(stop)
	wg.Wait()
}

func TestPoseProjector_SnapshotIsACopy(t *testing.T) {
	pp := NewPoseProjector(0)
	pp.Reset(identityFrame(), NaturalMetrics(10, 10))
	pp.UpdatePose(PoseSample{X: 1, Y: 1})

	snap := pp.Snapshot()
	require.NotNil(t, snap.Projection)
	snap.Projection.Pixel = Point{X: 99, Y: 99}

	cur, ok := pp.Current()
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 1}, cur.Pixel)
}
