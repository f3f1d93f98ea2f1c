package mesh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// LegacyShellMargin pads the inferred outer ring around the largest legacy
// polygon, in pixels.
const LegacyShellMargin = 2.0

// ShellKind tags how a boundary document was interpreted.
type ShellKind int

const (
	// EmptyShell means the document holds no usable room shell.
	EmptyShell ShellKind = iota
	// ExplicitShell came from an {outer, inner} document.
	ExplicitShell
	// InferredShell was recovered from a bare polygon list.
	InferredShell
)

func (k ShellKind) String() string {
	switch k {
	case ExplicitShell:
		return "explicit"
	case InferredShell:
		return "inferred"
	default:
		return "empty"
	}
}

// MarshalText lets ShellKind appear as a string in JSON.
func (k ShellKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// BoundaryPolygonSet is a single room shell in image coordinates.
type BoundaryPolygonSet struct {
	Outer Ring `json:"outer"`
	Inner Ring `json:"inner"`
}

// ShellVariant is the result of boundary format detection.
type ShellVariant struct {
	Kind  ShellKind          `json:"kind"`
	Shell BoundaryPolygonSet `json:"shell"`
	// Candidates is the number of usable polygons in a legacy document.
	Candidates int `json:"candidates,omitempty"`
}

// IsEmpty reports whether there is no geometry to build.
func (v ShellVariant) IsEmpty() bool {
	return v.Kind == EmptyShell
}

// ParseBoundaryDocument detects the boundary document format. An object with
// outer and inner rings is explicit; a bare array of polygons goes through
// legacy recovery. Anything without a usable shell is EmptyShell, not an error.
func ParseBoundaryDocument(data []byte) (ShellVariant, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ShellVariant{}, nil
	}

	switch trimmed[0] {
	case '{':
		var doc struct {
			Outer Ring `json:"outer"`
			Inner Ring `json:"inner"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return ShellVariant{}, fmt.Errorf("parsing boundary document: %w", err)
		}
		return ExplicitShellOf(doc.Outer, doc.Inner), nil
	case '[':
		var polys []Ring
		if err := json.Unmarshal(trimmed, &polys); err != nil {
			return ShellVariant{}, fmt.Errorf("parsing legacy boundary list: %w", err)
		}
		return InferShell(polys), nil
	case 'n':
		if string(trimmed) == "null" {
			return ShellVariant{}, nil
		}
	}
	return ShellVariant{}, fmt.Errorf("parsing boundary document: expected object or array")
}

// ExplicitShellOf wraps an outer/inner pair, or returns EmptyShell when
// either ring has fewer than 3 points or encloses no area.
func ExplicitShellOf(outer, inner Ring) ShellVariant {
	if !enclosesArea(outer) || !enclosesArea(inner) {
		return ShellVariant{}
	}
	return ShellVariant{
		Kind:  ExplicitShell,
		Shell: BoundaryPolygonSet{Outer: outer, Inner: inner},
	}
}

// InferShell recovers a shell from legacy polygon lists: the polygon with the
// largest absolute area becomes the inner ring and its bounding box, padded
// by LegacyShellMargin, becomes the outer ring. Polygons with fewer than 3
// points or zero area are ignored.
func InferShell(polys []Ring) ShellVariant {
	best := -1
	bestArea := 0.0
	candidates := 0
	for i, p := range polys {
		if !enclosesArea(p) {
			continue
		}
		candidates++
		if a := math.Abs(SignedArea(p)); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return ShellVariant{}
	}

	inner := polys[best].Clone()
	b := inner.Bound().Pad(LegacyShellMargin)
	outer := Ring{
		{X: b.Min[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Max[1]},
		{X: b.Min[0], Y: b.Max[1]},
	}
	return ShellVariant{
		Kind:       InferredShell,
		Shell:      BoundaryPolygonSet{Outer: outer, Inner: inner},
		Candidates: candidates,
	}
}

func enclosesArea(r Ring) bool {
	return len(r) >= 3 && SignedArea(r) != 0
}
