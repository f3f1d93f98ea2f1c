package mesh

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Default asset names used when no profile document exists.
const (
	DefaultRasterAsset    = "map.pgm"
	DefaultMetaAsset      = "meta.json"
	DefaultWallsAsset     = "wall_shell.json"
	DefaultObstacleAsset  = "obstacles.json"
	DefaultProfileName    = "default"
	DefaultProfileDocName = "profiles.yaml"
)

// Profile names the asset files that make up one map.
type Profile struct {
	Name      string `yaml:"-" json:"name"`
	Raster    string `yaml:"raster" json:"raster"`
	Meta      string `yaml:"meta" json:"meta"`
	Walls     string `yaml:"walls,omitempty" json:"walls,omitempty"`
	Obstacles string `yaml:"obstacles,omitempty" json:"obstacles,omitempty"`
}

// DefaultProfile is the single-map layout written by the shell generator.
func DefaultProfile() Profile {
	return Profile{
		Name:      DefaultProfileName,
		Raster:    DefaultRasterAsset,
		Meta:      DefaultMetaAsset,
		Walls:     DefaultWallsAsset,
		Obstacles: DefaultObstacleAsset,
	}
}

// ProfileDocument selects among several maps.
type ProfileDocument struct {
	Active   string             `yaml:"active" json:"active"`
	Profiles map[string]Profile `yaml:"profiles" json:"profiles"`
}

// ParseProfileDocument reads a YAML or JSON profile document.
func ParseProfileDocument(data []byte) (*ProfileDocument, error) {
	var doc ProfileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing profile document: %w", err)
	}
	return &doc, nil
}

// Names returns the profile names in sorted order.
func (d *ProfileDocument) Names() []string {
	names := make([]string, 0, len(d.Profiles))
	for name := range d.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveProfile picks override when set, otherwise the document's active
// profile. The chosen profile must exist and name a raster and metadata file.
func ResolveProfile(doc *ProfileDocument, override string) (Profile, error) {
	if doc == nil {
		return Profile{}, &ProfileResolutionError{Requested: override, Reason: "no profile document"}
	}

	name := override
	if name == "" {
		name = doc.Active
	}
	if name == "" {
		return Profile{}, &ProfileResolutionError{Reason: "no active profile set"}
	}

	p, ok := doc.Profiles[name]
	if !ok {
		return Profile{}, &ProfileResolutionError{Requested: name, Reason: "unknown profile"}
	}
	if p.Raster == "" || p.Meta == "" {
		return Profile{}, &ProfileResolutionError{Requested: name, Reason: "profile must name raster and meta"}
	}
	p.Name = name
	if p.Walls == "" {
		p.Walls = DefaultWallsAsset
	}
	return p, nil
}
