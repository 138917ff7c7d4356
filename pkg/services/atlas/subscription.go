package atlas

import (
	"context"
	"fmt"
	"log"
	"time"

	"atlas-overwatch/pkg/ontology"

	"github.com/paulmach/orb"
)

// Subscription is a loaded mission: its metadata, the caller's role and the
// entities scoped to it. Mission entities never enter the live view.
type Subscription struct {
	GUID       string
	Name       string
	Token      string
	Subscribed bool
	Meta       ontology.Mission
	Role       ontology.MissionRole
	Logs       []ontology.MissionLog

	entities map[string]*COT
	dirty    bool
	db       *Database
}

// MissionSnapshot is everything fetched from the mission API for one load.
type MissionSnapshot struct {
	GUID     string
	Token    string
	Meta     ontology.Mission
	Role     ontology.MissionRole
	Features []ontology.Feature
}

func newSubscription(db *Database, guid, token string) *Subscription {
	return &Subscription{
		GUID:     guid,
		Token:    token,
		entities: make(map[string]*COT),
		db:       db,
	}
}

// FetchMission reads metadata, role and features for a mission. It performs
// network I/O only and touches no store state.
func FetchMission(ctx context.Context, api MissionAPI, guid, token string) (*MissionSnapshot, error) {
	meta, err := api.Mission(ctx, guid, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mission %s: %w", guid, err)
	}
	role, err := api.MissionRole(ctx, guid, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mission role %s: %w", guid, err)
	}
	fc, err := api.MissionFeatures(ctx, guid, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mission features %s: %w", guid, err)
	}
	return &MissionSnapshot{
		GUID:     guid,
		Token:    token,
		Meta:     *meta,
		Role:     *role,
		Features: fc.Features,
	}, nil
}

// Load fetches the mission and replaces the subscription's contents.
// Calling it again refreshes in place.
func (s *Subscription) Load(ctx context.Context, api MissionAPI) error {
	snap, err := FetchMission(ctx, api, s.GUID, s.Token)
	if err != nil {
		return err
	}
	s.apply(snap)
	return nil
}

func (s *Subscription) apply(snap *MissionSnapshot) {
	s.Meta = snap.Meta
	s.Role = snap.Role
	s.Name = snap.Meta.Name
	s.Subscribed = true
	if snap.Meta.Logs != nil {
		s.Logs = snap.Meta.Logs
	}

	entities := make(map[string]*COT, len(snap.Features))
	origin := ontology.Origin{Mode: ontology.OriginMission, ModeID: s.GUID}
	for _, feat := range snap.Features {
		if feat.ID == "" || feat.Geometry == nil {
			log.Printf("[Atlas] warning: mission %s has a feature without id or geometry", s.GUID)
			continue
		}
		if existing, ok := s.entities[feat.ID]; ok {
			existing.Update(patchFrom(feat))
			entities[feat.ID] = existing
			continue
		}
		entities[feat.ID] = newCOT(s.db, feat, origin)
	}
	s.entities = entities
	s.dirty = true
}

// Record is the cacheable form of the subscription.
func (s *Subscription) Record() ontology.SubscriptionRecord {
	return ontology.SubscriptionRecord{
		GUID:       s.GUID,
		Name:       s.Name,
		Token:      s.Token,
		Subscribed: s.Subscribed,
		Meta:       s.Meta,
		Role:       s.Role,
		UpdatedAt:  time.Now(),
	}
}

func (s *Subscription) Get(uid string) *COT {
	return s.entities[uid]
}

func (s *Subscription) Len() int {
	return len(s.entities)
}

// Collection returns deep copies of the mission's full features.
func (s *Subscription) Collection() ontology.FeatureCollection {
	var features []ontology.Feature
	for _, id := range sortedKeys(s.entities) {
		features = append(features, s.entities[id].Feature(true))
	}
	return ontology.NewFeatureCollection(features)
}

func (s *Subscription) RenderedCollection() ontology.RenderedCollection {
	var features []ontology.RenderedFeature
	for _, id := range sortedKeys(s.entities) {
		if c := s.entities[id]; c.renderable() {
			features = append(features, c.Rendered())
		}
	}
	return ontology.NewRenderedCollection(features)
}

// Bounds covers every mission entity's geometry.
func (s *Subscription) Bounds() orb.Bound {
	var bound orb.Bound
	first := true
	for _, c := range s.entities {
		g := c.orb()
		if g == nil {
			continue
		}
		if first {
			bound = g.Bound()
			first = false
			continue
		}
		bound = bound.Union(g.Bound())
	}
	return bound
}

// UpdateFeature stores a mission entity and, unless skipNetwork is set, sends
// it outward addressed to the mission.
func (s *Subscription) UpdateFeature(c *COT, skipNetwork bool) {
	s.entities[c.ID] = c
	s.dirty = true
	if skipNetwork {
		return
	}

	feat := c.Feature(true)
	feat.Properties.Dest = []ontology.Dest{{Mission: s.Name}}
	s.db.sender.SendCOT(feat, "cot")
}

// DeleteFeature drops a mission entity locally and reports whether it was
// present. The remote delete is issued by the engine.
func (s *Subscription) DeleteFeature(uid string) bool {
	if _, ok := s.entities[uid]; !ok {
		log.Printf("[Atlas] warning: mission %s has no feature %s", s.GUID, uid)
		return false
	}
	delete(s.entities, uid)
	s.dirty = true
	return true
}

// install applies a fetched snapshot, creating the subscription if needed.
func (db *Database) install(snap *MissionSnapshot) *Subscription {
	sub := db.Subscribe(snap.GUID, snap.Token)
	sub.apply(snap)
	return sub
}
