package atlas

import (
	"context"
	"slices"
	"strings"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/spatial"

	"github.com/paulmach/orb"
)

func (db *Database) Has(id string) bool {
	return db.Get(id) != nil
}

// Paths lists the distinct paths of archived entities.
func (db *Database) Paths() []string {
	seen := make(map[string]struct{})
	for _, c := range db.candidates(false) {
		if c.properties.Archived {
			seen[c.Path] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// PathFeatures lists archived entities stored directly under path.
func (db *Database) PathFeatures(path string) []*COT {
	var out []*COT
	for _, c := range db.candidates(false) {
		if c.properties.Archived && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Groups lists the team names of group ("skittle") markers.
func (db *Database) Groups() []string {
	seen := make(map[string]struct{})
	for _, c := range db.candidates(false) {
		if g := c.properties.Group; g != nil && g.Name != "" {
			seen[g.Name] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Contacts lists entities that carry a contact block, optionally narrowed to
// one team. The self entity is never a contact.
func (db *Database) Contacts(group string) []*COT {
	var out []*COT
	for _, c := range db.candidates(false) {
		if c.properties.Contact == nil || c.isSelf() {
			continue
		}
		if group != "" && (c.properties.Group == nil || c.properties.Group.Name != group) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Markers lists the distinct CoT types of non-group point entities.
func (db *Database) Markers() []string {
	seen := make(map[string]struct{})
	for _, c := range db.candidates(false) {
		if c.GeometryType() == "Point" && c.properties.Group == nil {
			seen[c.properties.Type] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// MarkerFeatures lists non-group point entities whose type starts with typ.
func (db *Database) MarkerFeatures(typ string) []*COT {
	var out []*COT
	for _, c := range db.candidates(false) {
		if c.GeometryType() == "Point" && c.properties.Group == nil && strings.HasPrefix(c.properties.Type, typ) {
			out = append(out, c)
		}
	}
	return out
}

// Snapping returns every entity coordinate inside the bounding box, for
// snap-to-feature drawing.
func (db *Database) Snapping(box [4]float64) []orb.Point {
	bound := spatial.BBox(box)
	var out []orb.Point
	for _, c := range db.candidates(false) {
		g := c.orb()
		if g == nil || !spatial.Intersects(g, bound) {
			continue
		}
		for _, p := range spatial.Vertices(g) {
			if bound.Contains(p) && !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Paths lists archived paths.
func (a *Atlas) Paths(ctx context.Context) ([]string, error) {
	var out []string
	err := a.do(ctx, func() { out = a.db.Paths() })
	return out, err
}

func (a *Atlas) PathFeatures(ctx context.Context, path string) ([]ontology.Feature, error) {
	var out []ontology.Feature
	err := a.do(ctx, func() { out = features(a.db.PathFeatures(path)) })
	return out, err
}

func (a *Atlas) Groups(ctx context.Context) ([]string, error) {
	var out []string
	err := a.do(ctx, func() { out = a.db.Groups() })
	return out, err
}

func (a *Atlas) Contacts(ctx context.Context, group string) ([]ontology.Feature, error) {
	var out []ontology.Feature
	err := a.do(ctx, func() { out = features(a.db.Contacts(group)) })
	return out, err
}

func (a *Atlas) Markers(ctx context.Context) ([]string, error) {
	var out []string
	err := a.do(ctx, func() { out = a.db.Markers() })
	return out, err
}

func (a *Atlas) MarkerFeatures(ctx context.Context, typ string) ([]ontology.Feature, error) {
	var out []ontology.Feature
	err := a.do(ctx, func() { out = features(a.db.MarkerFeatures(typ)) })
	return out, err
}

func (a *Atlas) Snapping(ctx context.Context, box [4]float64) ([]orb.Point, error) {
	var out []orb.Point
	err := a.do(ctx, func() { out = a.db.Snapping(box) })
	return out, err
}
