package ontology

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// TimeFormat matches the millisecond ISO-8601 strings produced by TAK clients.
const TimeFormat = "2006-01-02T15:04:05.000Z"

type Group struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Sensor struct {
	Azimuth *float64 `json:"azimuth,omitempty"`
	FOV     *float64 `json:"fov,omitempty"`
	Range   *float64 `json:"range,omitempty"`
}

type Creator struct {
	UID      string `json:"uid"`
	Type     string `json:"type"`
	Callsign string `json:"callsign"`
	Time     string `json:"time"`
}

type Dest struct {
	Mission  string `json:"mission,omitempty"`
	UID      string `json:"uid,omitempty"`
	Callsign string `json:"callsign,omitempty"`
}

type Contact struct {
	Endpoint string `json:"endpoint,omitempty"`
	Callsign string `json:"callsign,omitempty"`
}

type TAKV struct {
	Device   string `json:"device,omitempty"`
	Platform string `json:"platform,omitempty"`
	OS       string `json:"os,omitempty"`
	Version  string `json:"version,omitempty"`
}

type Link struct {
	UID      string `json:"uid"`
	Relation string `json:"relation,omitempty"`
	Type     string `json:"type,omitempty"`
}

type Chat struct {
	Parent         string `json:"parent,omitempty"`
	GroupOwner     string `json:"groupOwner,omitempty"`
	Chatroom       string `json:"chatroom,omitempty"`
	ID             string `json:"id,omitempty"`
	SenderCallsign string `json:"senderCallsign,omitempty"`
}

// Properties is the typed property record of a feature. Keys without a typed
// field survive a decode/encode cycle through Extra.
type Properties struct {
	ID       string    `json:"id,omitempty"`
	Type     string    `json:"type"`
	How      string    `json:"how,omitempty"`
	Callsign string    `json:"callsign,omitempty"`
	Remarks  string    `json:"remarks,omitempty"`
	Time     string    `json:"time,omitempty"`
	Start    string    `json:"start,omitempty"`
	Stale    string    `json:"stale,omitempty"`
	Center   []float64 `json:"center,omitempty"`
	Archived bool      `json:"archived"`

	Course *float64 `json:"course,omitempty"`
	Speed  *float64 `json:"speed,omitempty"`
	Hae    *float64 `json:"hae,omitempty"`
	CE     *float64 `json:"ce,omitempty"`

	Group *Group `json:"group,omitempty"`
	Icon  string `json:"icon,omitempty"`

	Fill          string   `json:"fill,omitempty"`
	FillOpacity   *float64 `json:"fill-opacity,omitempty"`
	Stroke        string   `json:"stroke,omitempty"`
	StrokeOpacity *float64 `json:"stroke-opacity,omitempty"`
	StrokeWidth   *float64 `json:"stroke-width,omitempty"`
	StrokeStyle   string   `json:"stroke-style,omitempty"`

	MarkerColor   string   `json:"marker-color,omitempty"`
	MarkerRadius  *float64 `json:"marker-radius,omitempty"`
	MarkerOpacity *float64 `json:"marker-opacity,omitempty"`
	IconOpacity   *float64 `json:"icon-opacity,omitempty"`

	CircleColor   string   `json:"circle-color,omitempty"`
	CircleRadius  *float64 `json:"circle-radius,omitempty"`
	CircleOpacity *float64 `json:"circle-opacity,omitempty"`

	Sensor  *Sensor      `json:"sensor,omitempty"`
	Creator *Creator     `json:"creator,omitempty"`
	Dest    []Dest       `json:"dest,omitempty"`
	Contact *Contact     `json:"contact,omitempty"`
	TAKV    *TAKV        `json:"takv,omitempty"`
	Links   []Link       `json:"links,omitempty"`
	Chat    *Chat        `json:"chat,omitempty"`
	Mission *TaskMission `json:"mission,omitempty"`

	Extra map[string]any `json:"-"`
}

type properties Properties

var propertyKeys = jsonKeys(reflect.TypeOf(properties{}))

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	return keys
}

func (p Properties) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(properties(p))
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for key, value := range p.Extra {
		if _, ok := propertyKeys[key]; ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	var known properties
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range propertyKeys {
		delete(raw, key)
	}

	*p = Properties(known)
	p.Extra = nil
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// Get returns the value stored under a wire key and whether it is set.
func (p Properties) Get(key string) (any, bool) {
	switch key {
	case "id":
		return p.ID, p.ID != ""
	case "type":
		return p.Type, p.Type != ""
	case "how":
		return p.How, p.How != ""
	case "callsign":
		return p.Callsign, p.Callsign != ""
	case "remarks":
		return p.Remarks, p.Remarks != ""
	case "archived":
		return p.Archived, true
	case "course":
		return deref(p.Course)
	case "group":
		if p.Group == nil {
			return nil, false
		}
		return *p.Group, true
	case "icon":
		return p.Icon, p.Icon != ""
	case "fill":
		return p.Fill, p.Fill != ""
	case "fill-opacity":
		return deref(p.FillOpacity)
	case "stroke":
		return p.Stroke, p.Stroke != ""
	case "stroke-opacity":
		return deref(p.StrokeOpacity)
	case "stroke-width":
		return deref(p.StrokeWidth)
	case "stroke-style":
		return p.StrokeStyle, p.StrokeStyle != ""
	case "marker-color":
		return p.MarkerColor, p.MarkerColor != ""
	case "marker-radius":
		return deref(p.MarkerRadius)
	case "marker-opacity":
		return deref(p.MarkerOpacity)
	case "icon-opacity":
		return deref(p.IconOpacity)
	case "circle-color":
		return p.CircleColor, p.CircleColor != ""
	case "circle-radius":
		return deref(p.CircleRadius)
	case "circle-opacity":
		return deref(p.CircleOpacity)
	}
	value, ok := p.Extra[key]
	return value, ok
}

func deref(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// StaleTime parses the stale timestamp. ok is false when it is unset or malformed.
func (p Properties) StaleTime() (time.Time, bool) {
	if p.Stale == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.Stale)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Float is a helper for populating optional numeric properties.
func Float(v float64) *float64 {
	return &v
}
