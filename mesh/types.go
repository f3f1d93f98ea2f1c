package mesh

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kwv/slamview/internal/logger"
)

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a point in the 3D scene (y-up ground plane is x/y, z is height).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// UnmarshalJSON accepts the row form [[a,b,tx],[c,d,ty]] written by map
// tooling as well as the keyed object form produced by MarshalJSON.
func (m *AffineMatrix) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err == nil {
		if len(rows) != 2 || len(rows[0]) != 3 || len(rows[1]) != 3 {
			return fmt.Errorf("affine matrix must be 2x3, got %d rows", len(rows))
		}
		*m = AffineMatrix{
			A: rows[0][0], B: rows[0][1], Tx: rows[0][2],
			C: rows[1][0], D: rows[1][1], Ty: rows[1][2],
		}
		return nil
	}

	type plain AffineMatrix
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("affine matrix: %w", err)
	}
	*m = AffineMatrix(obj)
	return nil
}

// Rows returns the matrix in [[a,b,tx],[c,d,ty]] form.
func (m AffineMatrix) Rows() [2][3]float64 {
	return [2][3]float64{{m.A, m.B, m.Tx}, {m.C, m.D, m.Ty}}
}

// Origin is the map-frame position of the raster's pixel (0,0). Theta is only
// meaningful when HasHeading is set.
type Origin struct {
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	Theta      float64 `json:"theta,omitempty"`
	HasHeading bool    `json:"-"`
}

// UnmarshalJSON accepts [x0,y0], [x0,y0,theta] or {"x0":..,"y0":..[,"theta":..]}.
func (o *Origin) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		switch len(arr) {
		case 2:
			*o = Origin{X0: arr[0], Y0: arr[1]}
		case 3:
			*o = Origin{X0: arr[0], Y0: arr[1], Theta: arr[2], HasHeading: true}
		default:
			return fmt.Errorf("origin array must have 2 or 3 elements, got %d", len(arr))
		}
		return nil
	}

	var obj struct {
		X0    *float64 `json:"x0"`
		Y0    *float64 `json:"y0"`
		Theta *float64 `json:"theta"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if obj.X0 == nil || obj.Y0 == nil {
		return fmt.Errorf("origin object requires x0 and y0")
	}
	*o = Origin{X0: *obj.X0, Y0: *obj.Y0}
	if obj.Theta != nil {
		o.Theta = *obj.Theta
		o.HasHeading = true
	}
	return nil
}

// MarshalJSON writes the array form, keeping the heading when one is present.
func (o Origin) MarshalJSON() ([]byte, error) {
	if o.HasHeading {
		return json.Marshal([]float64{o.X0, o.Y0, o.Theta})
	}
	return json.Marshal([]float64{o.X0, o.Y0})
}

// GridMapAsset is the metadata document describing how the raster relates to
// the map frame. It is immutable once loaded.
type GridMapAsset struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Resolution float64       `json:"resolution"`
	Origin     *Origin       `json:"origin,omitempty"`
	Affine     *AffineMatrix `json:"affine,omitempty"`
	Rotate90   bool          `json:"rotate90,omitempty"`
}

// UnmarshalJSON reads the metadata document. The legacy rotateCCW90 key is an
// alias for rotate90, and an affine that is not a 2x3 matrix is ignored.
func (g *GridMapAsset) UnmarshalJSON(data []byte) error {
	var raw struct {
		Width       int             `json:"width"`
		Height      int             `json:"height"`
		Resolution  float64         `json:"resolution"`
		Origin      *Origin         `json:"origin"`
		Affine      json.RawMessage `json:"affine"`
		Rotate90    *bool           `json:"rotate90"`
		RotateCCW90 *bool           `json:"rotateCCW90"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*g = GridMapAsset{
		Width:      raw.Width,
		Height:     raw.Height,
		Resolution: raw.Resolution,
		Origin:     raw.Origin,
	}
	switch {
	case raw.Rotate90 != nil:
		g.Rotate90 = *raw.Rotate90
	case raw.RotateCCW90 != nil:
		g.Rotate90 = *raw.RotateCCW90
	}

	if len(raw.Affine) > 0 && string(raw.Affine) != "null" {
		var m AffineMatrix
		if err := json.Unmarshal(raw.Affine, &m); err != nil {
			logger.Sugar.Warnf("[LOADER] ignoring malformed affine: %v", err)
		} else {
			g.Affine = &m
		}
	}
	return nil
}

// PoseSample is one localization reading in the map frame.
type PoseSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite numbers.
func (p PoseSample) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// DisplayMetrics relates the raster's natural size to the size it is
// currently drawn at.
type DisplayMetrics struct {
	NaturalWidth  float64 `json:"naturalWidth" yaml:"naturalWidth"`
	NaturalHeight float64 `json:"naturalHeight" yaml:"naturalHeight"`
	DisplayWidth  float64 `json:"displayWidth" yaml:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight" yaml:"displayHeight"`
}

// Valid reports whether all four dimensions are positive.
func (d DisplayMetrics) Valid() bool {
	return d.NaturalWidth > 0 && d.NaturalHeight > 0 && d.DisplayWidth > 0 && d.DisplayHeight > 0
}

// NaturalMetrics returns metrics that draw the raster at its own size.
func NaturalMetrics(width, height int) DisplayMetrics {
	w, h := float64(width), float64(height)
	return DisplayMetrics{NaturalWidth: w, NaturalHeight: h, DisplayWidth: w, DisplayHeight: h}
}

// Config represents the full configuration file
type Config struct {
	Maps   MapsConfig   `yaml:"maps" json:"maps"`
	Viewer ViewerConfig `yaml:"viewer" json:"viewer"`
	Pose   PoseConfig   `yaml:"pose" json:"pose"`
	MQTT   MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// MapsConfig says where map assets come from.
type MapsConfig struct {
	Dir         string `yaml:"dir,omitempty" json:"dir,omitempty"`
	BaseURL     string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	ProfileFile string `yaml:"profileFile,omitempty" json:"profileFile,omitempty"`
	Profile     string `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// ViewerConfig holds scene construction parameters.
type ViewerConfig struct {
	WallHeight      float64         `yaml:"wallHeight" json:"wallHeight"`
	ObstacleSpacing float64         `yaml:"obstacleSpacing" json:"obstacleSpacing"`
	ObstacleMode    ObstacleMode    `yaml:"obstacleMode" json:"obstacleMode"`
	ObstacleOffset  float64         `yaml:"obstacleOffset" json:"obstacleOffset"`
	MarkerHeight    float64         `yaml:"markerHeight" json:"markerHeight"`
	Display         *DisplayMetrics `yaml:"display,omitempty" json:"display,omitempty"`
}

// PoseConfig configures the inbound pose websocket.
type PoseConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	PoseTopic     string `yaml:"poseTopic,omitempty" json:"poseTopic,omitempty"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}
