package atlas

import (
	"testing"
	"time"

	"atlas-overwatch/pkg/ontology"

	"github.com/go-playground/assert/v2"
)

func TestStyleDefaults(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Style("Point", ontology.Properties{Type: "a-f-G"}, now, nil)

	assert.Equal(t, p.Time, "2024-01-01T12:00:00.000Z")
	assert.Equal(t, p.Start, "2024-01-01T12:00:00.000Z")
	assert.Equal(t, p.Stale, "2024-01-01T12:10:00.000Z")
	assert.Equal(t, p.Remarks, "None")
	assert.Equal(t, p.How, "m-p")
	assert.Equal(t, p.Icon, "a-f-G")
}

func TestStyle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	icons := NewStaticIcons("milsym:a-f-G", "bits:flag")

	tests := []struct {
		name     string
		geometry string
		in       ontology.Properties
		check    func(t *testing.T, p ontology.Properties)
	}{
		{
			name:     "user type gets hand-entered how",
			geometry: "Point",
			in:       ontology.Properties{Type: "u-d-p"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.How, "h-g-i-g-o")
				assert.Equal(t, p.Icon, "")
			},
		},
		{
			name:     "group marker colour",
			geometry: "Point",
			in:       ontology.Properties{Type: "a-f-G-U-C", Group: &ontology.Group{Name: "Dark Blue"}},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.MarkerColor, "#0054a6")
				assert.Equal(t, p.Icon, "")
				assert.Equal(t, *p.IconOpacity, 0.0)
			},
		},
		{
			name:     "unknown team is white",
			geometry: "Point",
			in:       ontology.Properties{Type: "a-f-G-U-C", Group: &ontology.Group{Name: "Plaid"}},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.MarkerColor, "#ffffff")
			},
		},
		{
			name:     "icon path normalised",
			geometry: "Point",
			in:       ontology.Properties{Type: "a-f-G", Icon: "bits/flag.png"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.Icon, "bits:flag")
			},
		},
		{
			name:     "unknown icon falls back to type",
			geometry: "Point",
			in:       ontology.Properties{Type: "a-f-G", Icon: "bits/missing.png"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.Icon, "a-f-G")
			},
		},
		{
			name:     "line stroke defaults",
			geometry: "LineString",
			in:       ontology.Properties{Type: "u-d-f"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.Stroke, "#d63939")
				assert.Equal(t, p.StrokeStyle, "solid")
				assert.Equal(t, *p.StrokeWidth, 3.0)
				assert.Equal(t, *p.StrokeOpacity, 1.0)
				assert.Equal(t, p.Fill, "")
			},
		},
		{
			name:     "polygon fill defaults",
			geometry: "Polygon",
			in:       ontology.Properties{Type: "u-d-f", Stroke: "#00ff00"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.Stroke, "#00ff00")
				assert.Equal(t, p.Fill, "#d63939")
				assert.Equal(t, *p.FillOpacity, 0.5)
			},
		},
		{
			name:     "existing values kept",
			geometry: "Point",
			in:       ontology.Properties{Type: "a-f-G", How: "m-g", Remarks: "hello", Stale: "2030-01-01T00:00:00.000Z"},
			check: func(t *testing.T, p ontology.Properties) {
				assert.Equal(t, p.How, "m-g")
				assert.Equal(t, p.Remarks, "hello")
				assert.Equal(t, p.Stale, "2030-01-01T00:00:00.000Z")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			styled := Style(tt.geometry, tt.in, now, icons)
			tt.check(t, styled)

			again := Style(tt.geometry, styled, now.Add(time.Hour), icons)
			assert.Equal(t, again, styled)
		})
	}
}

func TestStyleDoesNotMutateInput(t *testing.T) {
	in := ontology.Properties{Type: "u-d-f"}
	Style("Polygon", in, time.Now(), nil)
	assert.Equal(t, in.Fill, "")
	assert.Equal(t, in.StrokeWidth, nil)
}
