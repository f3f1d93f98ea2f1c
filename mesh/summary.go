package mesh

import (
	"fmt"
	"io"
	"math"
)

// AssetSummary provides a summary of a loaded profile
type AssetSummary struct {
	Profile       string
	Width         int
	Height        int
	Resolution    float64
	Origin        *Origin
	Rotate90      bool
	HasAffine     bool
	FrameMode     FrameMode
	FrameError    string
	ShellKind     ShellKind
	Candidates    int
	OuterPoints   int
	InnerPoints   int
	FootprintArea float64
	ObstacleCount int
	// MapExtent is the raster's corner-to-corner span in map meters, when a
	// frame is available.
	MapExtent *[2]Point
}

// Summarize extracts key information from loaded assets
func Summarize(assets *MapAssets) AssetSummary {
	summary := AssetSummary{
		Profile:    assets.Profile.Name,
		Width:      assets.Meta.Width,
		Height:     assets.Meta.Height,
		Resolution: assets.Meta.Resolution,
		Origin:     assets.Meta.Origin,
		Rotate90:   assets.Meta.Rotate90,
		HasAffine:  assets.Meta.Affine != nil,
		ShellKind:  assets.Shell.Kind,
		Candidates: assets.Shell.Candidates,
	}
	if assets.Raster != nil {
		summary.Width, summary.Height = assets.Raster.Width, assets.Raster.Height
	}

	if assets.Frame != nil {
		summary.FrameMode = assets.Frame.Mode
		a, okA := assets.Frame.PixelToMap(0, 0)
		b, okB := assets.Frame.PixelToMap(float64(summary.Width), float64(summary.Height))
		if okA && okB {
			summary.MapExtent = &[2]Point{a, b}
		}
	} else if assets.FrameErr != nil {
		summary.FrameError = assets.FrameErr.Error()
	}

	if !assets.Shell.IsEmpty() {
		summary.OuterPoints = len(assets.Shell.Shell.Outer.Open())
		summary.InnerPoints = len(assets.Shell.Shell.Inner.Open())
		summary.FootprintArea = math.Abs(SignedArea(assets.Shell.Shell.Outer)) - math.Abs(SignedArea(assets.Shell.Shell.Inner))
	}

	for _, p := range assets.Obstacles {
		if len(p) >= 3 {
			summary.ObstacleCount++
		}
	}
	return summary
}

// WriteText prints the summary as aligned key/value lines.
func (s AssetSummary) WriteText(w io.Writer) error {
	lines := [][2]string{
		{"profile", s.Profile},
		{"raster", fmt.Sprintf("%dx%d", s.Width, s.Height)},
		{"resolution", fmt.Sprintf("%g m/px", s.Resolution)},
	}
	if s.Origin != nil {
		origin := fmt.Sprintf("(%g, %g)", s.Origin.X0, s.Origin.Y0)
		if s.Origin.HasHeading {
			origin += fmt.Sprintf(" theta %g", s.Origin.Theta)
		}
		lines = append(lines, [2]string{"origin", origin})
	}
	switch {
	case s.FrameMode != "":
		lines = append(lines, [2]string{"frame", string(s.FrameMode)})
	case s.FrameError != "":
		lines = append(lines, [2]string{"frame", "unresolved: " + s.FrameError})
	}
	if s.MapExtent != nil {
		lines = append(lines, [2]string{"extent", fmt.Sprintf("(%.3f, %.3f) .. (%.3f, %.3f)",
			s.MapExtent[0].X, s.MapExtent[0].Y, s.MapExtent[1].X, s.MapExtent[1].Y)})
	}
	shell := s.ShellKind.String()
	if s.ShellKind == InferredShell {
		shell += fmt.Sprintf(" (%d candidates)", s.Candidates)
	}
	lines = append(lines,
		[2]string{"shell", shell},
		[2]string{"rings", fmt.Sprintf("outer %d pts, inner %d pts", s.OuterPoints, s.InnerPoints)},
		[2]string{"footprint", fmt.Sprintf("%.1f px²", s.FootprintArea)},
		[2]string{"obstacles", fmt.Sprintf("%d", s.ObstacleCount)},
	)

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-11s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}
