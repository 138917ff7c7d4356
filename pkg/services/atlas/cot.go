package atlas

import (
	"log"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/spatial"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	sensorSuffix      = "-sensor"
	sensorType        = "u-d-p"
	sensorRange       = 10.0
	sensorColor       = "#ffffff"
	staleOpacity      = 0.5
	freshOpacity      = 1.0
	sensorFillOpacity = 0.2
)

// COT is a single geospatial entity owned by a Database or Subscription.
type COT struct {
	ID     string
	Path   string
	Origin ontology.Origin

	properties ontology.Properties
	geometry   *geojson.Geometry
	links      map[string]struct{}

	db *Database
}

// Patch is a partial entity update. Nil fields are left untouched.
type Patch struct {
	Path       *string
	Properties *ontology.Properties
	Geometry   *geojson.Geometry
}

func patchFrom(feat ontology.Feature) Patch {
	patch := Patch{Properties: &feat.Properties, Geometry: feat.Geometry}
	if feat.Path != "" {
		patch.Path = &feat.Path
	}
	return patch
}

var propertiesEqual = cmpopts.EquateEmpty()

// newCOT styles the incoming feature and, for live entities, queues it for
// the next diff.
func newCOT(db *Database, feat ontology.Feature, origin ontology.Origin) *COT {
	c := &COT{
		ID:       feat.ID,
		Path:     feat.Path,
		Origin:   origin,
		geometry: feat.Geometry,
		links:    make(map[string]struct{}),
		db:       db,
	}
	if c.Path == "" {
		c.Path = "/"
	}

	props := feat.Properties
	props.ID = feat.ID
	c.properties = Style(c.GeometryType(), props, db.now(), db.icons)
	if spatial.IsSentinel(c.properties.Center) {
		c.properties.Center = c.center()
	}

	if origin.Mode == ontology.OriginConnection {
		// a re-add supersedes a removal queued in the same cycle
		delete(db.pendingDelete, c.ID)
		db.pendingAdd[c.ID] = c
		c.link()
	}
	return c
}

func (c *COT) Properties() ontology.Properties {
	return c.properties
}

func (c *COT) Geometry() *geojson.Geometry {
	return c.geometry
}

// GeometryType is the GeoJSON type name, empty when there is no geometry.
func (c *COT) GeometryType() string {
	if c.geometry == nil {
		return ""
	}
	return c.geometry.Type
}

func (c *COT) orb() orb.Geometry {
	if c.geometry == nil {
		return nil
	}
	return c.geometry.Geometry()
}

func (c *COT) center() []float64 {
	g := c.orb()
	if g == nil {
		return []float64{0, 0}
	}
	p := spatial.PointOnFeature(g)
	return []float64{p.Lon(), p.Lat()}
}

func (c *COT) isSelf() bool {
	uid, err := c.db.profile.UID()
	return err == nil && uid == c.ID
}

// persistable reports whether the entity belongs in the remote archive.
func (c *COT) persistable() bool {
	return c.properties.Archived && !c.isSelf()
}

// Update applies a patch and reports whether a visual change occurred.
func (c *COT) Update(patch Patch) bool {
	visual, _ := c.update(patch)
	return visual
}

func (c *COT) update(patch Patch) (visual bool, changed bool) {
	geometryChanged := false
	if patch.Geometry != nil && !geometryEqual(c.geometry, patch.Geometry) {
		c.geometry = patch.Geometry
		geometryChanged = true
		visual = true
	}

	propertiesChanged := false
	if patch.Properties != nil {
		next := *patch.Properties
		next.ID = c.ID
		if len(next.Center) == 0 && !geometryChanged {
			next.Center = c.properties.Center
		}
		// staleness opacity is owned by the diff
		if next.IconOpacity == nil {
			next.IconOpacity = c.properties.IconOpacity
		}
		if next.MarkerOpacity == nil {
			next.MarkerOpacity = c.properties.MarkerOpacity
		}
		next = Style(c.GeometryType(), next, c.db.now(), c.db.icons)
		if !cmp.Equal(c.properties, next, propertiesEqual) {
			if renderedChanged(c.properties, next) {
				visual = true
			}
			c.properties = next
			propertiesChanged = true
		}
	}

	pathChanged := false
	if patch.Path != nil && *patch.Path != c.Path {
		c.Path = *patch.Path
		pathChanged = true
	}

	if !geometryChanged && !propertiesChanged && !pathChanged {
		return false, false
	}

	if geometryChanged || spatial.IsSentinel(c.properties.Center) {
		c.properties.Center = c.center()
	}

	if c.Origin.Mode == ontology.OriginConnection {
		c.db.enqueueUpdate(c)
		c.link()
	}

	if propertiesChanged && c.isSelf() {
		if update := c.db.profile.reflect(c.properties); update != nil {
			c.db.profileUpdate = update
		}
	}
	return visual, true
}

func geometryEqual(a, b *geojson.Geometry) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type {
		return false
	}
	ga, gb := a.Geometry(), b.Geometry()
	if ga == nil || gb == nil {
		return ga == nil && gb == nil
	}
	return orb.Equal(ga, gb)
}

func renderedChanged(a, b ontology.Properties) bool {
	for _, key := range RenderedProperties {
		va, oka := a.Get(key)
		vb, okb := b.Get(key)
		if oka != okb || !cmp.Equal(va, vb) {
			return true
		}
	}
	return false
}

// Rendered is the renderer projection: id, callsign and the allow-list.
func (c *COT) Rendered() ontology.RenderedFeature {
	props := map[string]any{
		"id":       c.ID,
		"callsign": c.properties.Callsign,
	}
	for _, key := range RenderedProperties {
		if v, ok := c.properties.Get(key); ok {
			props[key] = v
		}
	}
	return ontology.RenderedFeature{
		ID:         c.ID,
		Type:       "Feature",
		Properties: props,
		Geometry:   c.geometry,
	}
}

// renderedUpdate is the FeatureUpdate form of Rendered.
func (c *COT) renderedUpdate() ontology.FeatureUpdate {
	values := []ontology.PropertyValue{{Key: "callsign", Value: c.properties.Callsign}}
	for _, key := range RenderedProperties {
		if key == "callsign" {
			continue
		}
		if v, ok := c.properties.Get(key); ok {
			values = append(values, ontology.PropertyValue{Key: key, Value: v})
		}
	}
	return ontology.FeatureUpdate{
		ID:                    c.ID,
		AddOrUpdateProperties: values,
		NewGeometry:           c.geometry,
	}
}

// Feature is the full projection. A clone shares no memory with the entity.
func (c *COT) Feature(clone bool) ontology.Feature {
	origin := c.Origin
	feat := ontology.Feature{
		ID:         c.ID,
		Type:       "Feature",
		Path:       c.Path,
		Origin:     &origin,
		Properties: c.properties,
		Geometry:   c.geometry,
	}
	if !clone {
		return feat
	}
	out, err := feat.Clone()
	if err != nil {
		log.Printf("[Atlas] warning: %v", err)
		return feat
	}
	return out
}

// setOpacity applies the staleness opacity and reports whether it changed.
// Team markers keep their icon hidden.
func (c *COT) setOpacity(v float64) bool {
	p := &c.properties
	icon := v
	if p.Group != nil {
		icon = 0
	}
	if p.IconOpacity != nil && *p.IconOpacity == icon && p.MarkerOpacity != nil && *p.MarkerOpacity == v {
		return false
	}
	p.IconOpacity = ontology.Float(icon)
	p.MarkerOpacity = ontology.Float(v)
	return true
}

// link derives the sensor sector entity from sensor properties.
func (c *COT) link() {
	s := c.properties.Sensor
	if s == nil || s.Azimuth == nil || s.FOV == nil || c.orb() == nil {
		return
	}

	rng := sensorRange
	if s.Range != nil && *s.Range > 0 {
		rng = *s.Range
	}
	center := orb.Point{c.properties.Center[0], c.properties.Center[1]}
	sector := geojson.NewGeometry(spatial.Sector(center, rng, *s.Azimuth, *s.Azimuth+*s.FOV))

	id := c.ID + sensorSuffix
	if _, ok := c.links[id]; ok {
		if linked := c.db.Get(id); linked != nil {
			linked.Update(Patch{Geometry: sector})
			return
		}
	}

	newCOT(c.db, ontology.Feature{
		ID:   id,
		Type: "Feature",
		Path: c.Path,
		Properties: ontology.Properties{
			ID:            id,
			Type:          sensorType,
			How:           c.properties.How,
			Time:          c.properties.Time,
			Start:         c.properties.Start,
			Stale:         c.properties.Stale,
			Center:        c.properties.Center,
			Stroke:        sensorColor,
			StrokeWidth:   ontology.Float(1),
			StrokeOpacity: ontology.Float(1),
			Fill:          sensorColor,
			FillOpacity:   ontology.Float(sensorFillOpacity),
		},
		Geometry: sector,
	}, ontology.Origin{Mode: ontology.OriginConnection})
	c.links[id] = struct{}{}
}
