package ontology

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type OriginMode string

const (
	OriginConnection OriginMode = "Connection"
	OriginMission    OriginMode = "Mission"
)

type Origin struct {
	Mode   OriginMode `json:"mode"`
	ModeID string     `json:"mode_id,omitempty"`
}

// Feature is the full GeoJSON projection of an entity.
type Feature struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Path       string            `json:"path,omitempty"`
	Origin     *Origin           `json:"origin,omitempty"`
	Properties Properties        `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// Clone deep-copies the feature through its wire schema.
func (f Feature) Clone() (Feature, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return Feature{}, fmt.Errorf("failed to marshal feature %s: %w", f.ID, err)
	}
	var out Feature
	if err := json.Unmarshal(raw, &out); err != nil {
		return Feature{}, fmt.Errorf("failed to unmarshal feature %s: %w", f.ID, err)
	}
	return out, nil
}

// Orb returns the geometry as an orb value, nil when absent.
func (f Feature) Orb() orb.Geometry {
	if f.Geometry == nil {
		return nil
	}
	return f.Geometry.Geometry()
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// RenderedFeature carries only the keys the renderer styles on.
type RenderedFeature struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Properties map[string]any    `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

type RenderedCollection struct {
	Type     string            `json:"type"`
	Features []RenderedFeature `json:"features"`
}

func NewRenderedCollection(features []RenderedFeature) RenderedCollection {
	if features == nil {
		features = []RenderedFeature{}
	}
	return RenderedCollection{Type: "FeatureCollection", Features: features}
}

type PropertyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type FeatureUpdate struct {
	ID                    string            `json:"id"`
	AddOrUpdateProperties []PropertyValue   `json:"addOrUpdateProperties"`
	NewGeometry           *geojson.Geometry `json:"newGeometry,omitempty"`
}

// Diff is one tick's worth of renderer changes.
type Diff struct {
	Add    []RenderedFeature `json:"add"`
	Update []FeatureUpdate   `json:"update"`
	Remove []string          `json:"remove"`
}

func NewDiff() Diff {
	return Diff{
		Add:    []RenderedFeature{},
		Update: []FeatureUpdate{},
		Remove: []string{},
	}
}

func (d Diff) Empty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}

type List[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}
