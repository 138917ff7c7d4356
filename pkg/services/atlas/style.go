package atlas

import (
	"strings"
	"time"

	"atlas-overwatch/pkg/ontology"
)

// RenderedProperties is the allow-list of keys the renderer styles on.
var RenderedProperties = []string{
	"callsign",
	"fill",
	"fill-opacity",
	"stroke",
	"group",
	"icon",
	"course",
	"icon-opacity",
	"stroke-opacity",
	"stroke-width",
	"marker-color",
	"marker-radius",
	"marker-opacity",
	"circle-color",
	"circle-radius",
	"circle-opacity",
}

// Team colours for group ("skittle") markers.
var teamColors = map[string]string{
	"Yellow":     "#f59f00",
	"Orange":     "#f76707",
	"Magenta":    "#ea4c89",
	"Red":        "#d63939",
	"Maroon":     "#bd081c",
	"Purple":     "#ae3ec9",
	"Dark Blue":  "#0054a6",
	"Blue":       "#4299e1",
	"Cyan":       "#17a2b8",
	"Teal":       "#0ca678",
	"Green":      "#74b816",
	"Dark Green": "#2fb344",
	"Brown":      "#dc4e41",
}

const (
	defaultTeamColor = "#ffffff"
	defaultStroke    = "#d63939"
	defaultStale     = 10 * time.Minute
)

// IconSet resolves icon names known to the renderer.
type IconSet interface {
	Has(icon string) bool
}

// Style fills in rendering defaults for a property set. It never mutates its
// input and restyling its own output returns the same value.
func Style(geometryType string, in ontology.Properties, now time.Time, icons IconSet) ontology.Properties {
	p := in

	if p.Time == "" {
		p.Time = now.UTC().Format(ontology.TimeFormat)
	}
	if p.Start == "" {
		p.Start = now.UTC().Format(ontology.TimeFormat)
	}
	if p.Stale == "" {
		p.Stale = now.Add(defaultStale).UTC().Format(ontology.TimeFormat)
	}
	if p.Remarks == "" {
		p.Remarks = "None"
	}
	if p.How == "" {
		if strings.HasPrefix(p.Type, "u-") {
			p.How = "h-g-i-g-o"
		} else {
			p.How = "m-p"
		}
	}

	switch {
	case strings.Contains(geometryType, "Point"):
		stylePoint(&p, icons)
	case strings.Contains(geometryType, "Line"):
		styleStroke(&p)
	case strings.Contains(geometryType, "Polygon"):
		styleStroke(&p)
		if p.Fill == "" {
			p.Fill = defaultStroke
		}
		if p.FillOpacity == nil {
			p.FillOpacity = ontology.Float(0.5)
		}
	}
	return p
}

func stylePoint(p *ontology.Properties, icons IconSet) {
	if p.Group != nil {
		color, ok := teamColors[p.Group.Name]
		if !ok {
			color = defaultTeamColor
		}
		p.MarkerColor = color
		p.IconOpacity = ontology.Float(0)
		return
	}

	if p.Icon != "" {
		icon := p.Icon
		if !strings.Contains(icon, ":") {
			icon = strings.Replace(icon, "/", ":", 1)
		}
		icon = strings.TrimSuffix(icon, ".png")
		if icons != nil && !icons.Has(icon) {
			icon = p.Type
		}
		p.Icon = icon
	} else if p.Type != "u-d-p" {
		p.Icon = p.Type
	}
}

func styleStroke(p *ontology.Properties) {
	if p.Stroke == "" {
		p.Stroke = defaultStroke
	}
	if p.StrokeStyle == "" {
		p.StrokeStyle = "solid"
	}
	if p.StrokeWidth == nil {
		p.StrokeWidth = ontology.Float(3)
	}
	if p.StrokeOpacity == nil {
		p.StrokeOpacity = ontology.Float(1)
	}
}

// StaticIcons is an IconSet backed by a fixed list of names.
type StaticIcons map[string]struct{}

func NewStaticIcons(names ...string) StaticIcons {
	icons := make(StaticIcons, len(names))
	for _, name := range names {
		icons[name] = struct{}{}
	}
	return icons
}

func (s StaticIcons) Has(icon string) bool {
	_, ok := s[icon]
	return ok
}
