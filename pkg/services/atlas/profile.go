package atlas

import (
	"fmt"
	"time"

	"atlas-overwatch/pkg/ontology"

	"github.com/golang-jwt/jwt/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	selfPrefix      = "ANDROID-CloudTAK-"
	selfStale       = 60 * time.Second
	defaultSelfType = "a-f-G-E-V-C"
)

// Profile is the local user's identity and presence settings.
type Profile struct {
	Username     string
	Callsign     string
	Remarks      string
	Type         string
	Group        string
	Role         string
	DisplayStale string
	LocFreq      time.Duration
	Location     *orb.Point
	Version      string
}

// UsernameFromToken reads the user identity out of an auth token without
// verifying it. The server is the verifier; we only need the claim.
func UsernameFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	for _, key := range []string{"email", "username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("token has no identity claim: %w", ErrProfileNotLoaded)
}

// Apply copies a server profile record into the local profile.
func (p *Profile) Apply(rec ontology.ProfileRecord) {
	if rec.Username != "" {
		p.Username = rec.Username
	}
	p.Callsign = rec.TakCallsign
	p.Remarks = rec.TakRemarks
	p.Group = rec.TakGroup
	p.Role = rec.TakRole
	if rec.TakType != "" {
		p.Type = rec.TakType
	}
	if rec.DisplayStale != "" {
		p.DisplayStale = rec.DisplayStale
	}
	if rec.TakLocFreq > 0 {
		p.LocFreq = time.Duration(rec.TakLocFreq) * time.Millisecond
	}
	if rec.TakLoc != nil {
		if pt, ok := rec.TakLoc.Geometry().(orb.Point); ok {
			p.Location = &pt
		}
	}
}

// UID is the self entity id.
func (p *Profile) UID() (string, error) {
	if p == nil || p.Username == "" {
		return "", ErrProfileNotLoaded
	}
	return selfPrefix + p.Username, nil
}

// Creator stamps an authored feature with the local identity.
func (p *Profile) Creator(now time.Time) (*ontology.Creator, error) {
	uid, err := p.UID()
	if err != nil {
		return nil, err
	}
	return &ontology.Creator{
		UID:      uid,
		Type:     p.selfType(),
		Callsign: p.Callsign,
		Time:     now.UTC().Format(ontology.TimeFormat),
	}, nil
}

func (p *Profile) selfType() string {
	if p.Type != "" {
		return p.Type
	}
	return defaultSelfType
}

// SelfFeature builds the self-location CoT broadcast by the beacon.
func (p *Profile) SelfFeature(now time.Time) (ontology.Feature, error) {
	uid, err := p.UID()
	if err != nil {
		return ontology.Feature{}, err
	}

	loc := orb.Point{0, 0}
	if p.Location != nil {
		loc = *p.Location
	}

	ts := now.UTC().Format(ontology.TimeFormat)
	return ontology.Feature{
		ID:   uid,
		Type: "Feature",
		Path: "/",
		Properties: ontology.Properties{
			ID:       uid,
			Type:     p.selfType(),
			How:      "m-g",
			Callsign: p.Callsign,
			Remarks:  p.Remarks,
			Time:     ts,
			Start:    ts,
			Stale:    now.Add(selfStale).UTC().Format(ontology.TimeFormat),
			Center:   []float64{loc.Lon(), loc.Lat()},
			Hae:      ontology.Float(0),
			Contact: &ontology.Contact{
				Endpoint: "*:-1:stcp",
				Callsign: p.Callsign,
			},
			Group: &ontology.Group{
				Name: p.Group,
				Role: p.Role,
			},
			TAKV: &ontology.TAKV{
				Device:   "atlas-overwatch",
				Platform: "atlas-overwatch",
				OS:       "linux",
				Version:  p.Version,
			},
		},
		Geometry: geojson.NewGeometry(loc),
	}, nil
}

// reflect records callsign and remarks from the self entity. It returns the
// patch to send upstream, nil when nothing changed.
func (p *Profile) reflect(props ontology.Properties) *ontology.ProfileUpdate {
	var update ontology.ProfileUpdate
	changed := false
	if props.Callsign != "" && props.Callsign != p.Callsign {
		callsign := props.Callsign
		p.Callsign = callsign
		update.TakCallsign = &callsign
		changed = true
	}
	if props.Remarks != "" && props.Remarks != "None" && props.Remarks != p.Remarks {
		remarks := props.Remarks
		p.Remarks = remarks
		update.TakRemarks = &remarks
		changed = true
	}
	if !changed {
		return nil
	}
	return &update
}
