package mesh

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := Summarize(geoTestAssets(t))

	assert.Equal(t, "lab", s.Profile)
	assert.Equal(t, 120, s.Width)
	assert.Equal(t, FramePlain, s.FrameMode)
	assert.Equal(t, ExplicitShell, s.ShellKind)
	assert.Equal(t, 4, s.OuterPoints)
	assert.InDelta(t, 6400, s.FootprintArea, 1e-9)
	assert.Equal(t, 1, s.ObstacleCount)
	require.NotNil(t, s.MapExtent)
	assert.InDelta(t, -1, s.MapExtent[0].X, 1e-9)
	assert.InDelta(t, 59, s.MapExtent[1].X, 1e-9)
}

func TestSummarize_Unresolved(t *testing.T) {
	assets := geoTestAssets(t)
	assets.Frame = nil
	assets.FrameErr = ErrMissingOrigin
	assets.Shell = InferShell([]Ring{{{10, 10}, {50, 10}, {50, 30}, {10, 30}}})

	s := Summarize(assets)
	assert.Empty(t, s.FrameMode)
	assert.Equal(t, ErrMissingOrigin.Error(), s.FrameError)
	assert.Nil(t, s.MapExtent)

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "frame:      unresolved")
	assert.Contains(t, out, "inferred (1 candidates)")
}

func TestAssetSummary_WriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summarize(geoTestAssets(t)).WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "profile:    lab\n")
	assert.Contains(t, out, "raster:     120x120\n")
	assert.Contains(t, out, "frame:      plain\n")
	assert.Contains(t, out, "obstacles:  1\n")
}
