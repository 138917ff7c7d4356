package atlas

import (
	"context"
	"fmt"
	"log"

	"atlas-overwatch/pkg/ontology"

	"github.com/paulmach/orb"
)

// LoadMission subscribes to a mission and loads its contents. Loading an
// already loaded mission refreshes it in place.
func (a *Atlas) LoadMission(ctx context.Context, guid, token string) (*ontology.SubscriptionRecord, error) {
	if a.missions == nil {
		return nil, fmt.Errorf("failed to load mission %s: no mission api configured", guid)
	}
	if err := a.missions.Subscribe(ctx, guid, token); err != nil {
		return nil, fmt.Errorf("failed to subscribe to mission %s: %w", guid, err)
	}
	snap, err := FetchMission(ctx, a.missions, guid, token)
	if err != nil {
		return nil, err
	}

	var rec ontology.SubscriptionRecord
	var logs []ontology.MissionLog
	if err := a.do(ctx, func() {
		sub := a.db.install(snap)
		rec = sub.Record()
		logs = sub.Logs
	}); err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SaveSubscription(ctx, rec); err != nil {
			log.Printf("[Atlas] Failed to cache mission %s: %v", guid, err)
		}
		if err := a.cache.SaveMissionLogs(ctx, guid, logs); err != nil {
			log.Printf("[Atlas] Failed to cache mission logs %s: %v", guid, err)
		}
	}
	log.Printf("[Atlas] Loaded mission %s (%s)", rec.Name, guid)
	return &rec, nil
}

// DeleteMission unsubscribes from a mission. Live connection features are
// never touched.
func (a *Atlas) DeleteMission(ctx context.Context, guid string) error {
	var found bool
	var token string
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			token = sub.Token
		}
		found = a.db.Unsubscribe(guid)
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("failed to delete mission %s: %w", guid, ErrMissionNotLoaded)
	}

	if a.missions != nil {
		if err := a.missions.Unsubscribe(ctx, guid, token); err != nil {
			log.Printf("[Atlas] Failed to unsubscribe from mission %s: %v", guid, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.DeleteSubscription(ctx, guid); err != nil {
			log.Printf("[Atlas] Failed to uncache mission %s: %v", guid, err)
		}
	}
	return nil
}

func (a *Atlas) MakeActiveMission(ctx context.Context, guid string) error {
	var activeErr error
	if err := a.do(ctx, func() { activeErr = a.db.MakeActiveMission(guid) }); err != nil {
		return err
	}
	return activeErr
}

// MissionCollection returns a loaded mission's features.
func (a *Atlas) MissionCollection(ctx context.Context, guid string) (*ontology.FeatureCollection, error) {
	var out *ontology.FeatureCollection
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			fc := sub.Collection()
			out = &fc
		}
	}); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("failed to get mission %s: %w", guid, ErrMissionNotLoaded)
	}
	return out, nil
}

// MissionRendered returns a loaded mission's renderer projection.
func (a *Atlas) MissionRendered(ctx context.Context, guid string) (*ontology.RenderedCollection, error) {
	var out *ontology.RenderedCollection
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			rc := sub.RenderedCollection()
			out = &rc
		}
	}); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("failed to get mission %s: %w", guid, ErrMissionNotLoaded)
	}
	return out, nil
}

// MissionBounds covers a loaded mission's features.
func (a *Atlas) MissionBounds(ctx context.Context, guid string) (orb.Bound, error) {
	var bound orb.Bound
	found := false
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			bound = sub.Bounds()
			found = true
		}
	}); err != nil {
		return orb.Bound{}, err
	}
	if !found {
		return orb.Bound{}, fmt.Errorf("failed to get mission %s: %w", guid, ErrMissionNotLoaded)
	}
	return bound, nil
}

// Subscriptions lists loaded missions.
func (a *Atlas) Subscriptions(ctx context.Context) ([]ontology.SubscriptionRecord, error) {
	var out []ontology.SubscriptionRecord
	err := a.do(ctx, func() {
		for _, guid := range sortedKeys(a.db.subscriptions) {
			out = append(out, a.db.subscriptions[guid].Record())
		}
	})
	return out, err
}

// SubscriptionChange applies a mission change task and runs any log or
// metadata refresh it asks for.
func (a *Atlas) SubscriptionChange(ctx context.Context, task ontology.Feature) error {
	var res ChangeResult
	if err := a.do(ctx, func() { res = a.db.SubscriptionChange(task) }); err != nil {
		return err
	}
	if a.missions == nil {
		return nil
	}

	for _, guid := range res.RefreshLogs {
		if err := a.refreshLogs(ctx, guid); err != nil {
			log.Printf("[Atlas] Failed to refresh mission logs %s: %v", guid, err)
		}
	}
	for _, guid := range res.RefreshMeta {
		if err := a.refreshMeta(ctx, guid); err != nil {
			log.Printf("[Atlas] Failed to refresh mission %s: %v", guid, err)
		}
	}
	return nil
}

func (a *Atlas) missionToken(ctx context.Context, guid string) (string, error) {
	var token string
	found := false
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			token = sub.Token
			found = true
		}
	}); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("mission %s: %w", guid, ErrMissionNotLoaded)
	}
	return token, nil
}

func (a *Atlas) refreshLogs(ctx context.Context, guid string) error {
	token, err := a.missionToken(ctx, guid)
	if err != nil {
		return err
	}
	logs, err := a.missions.MissionLogs(ctx, guid, token)
	if err != nil {
		return err
	}
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			sub.Logs = logs
		}
	}); err != nil {
		return err
	}
	if a.cache != nil {
		return a.cache.SaveMissionLogs(ctx, guid, logs)
	}
	return nil
}

func (a *Atlas) refreshMeta(ctx context.Context, guid string) error {
	token, err := a.missionToken(ctx, guid)
	if err != nil {
		return err
	}
	meta, err := a.missions.Mission(ctx, guid, token)
	if err != nil {
		return err
	}
	var rec ontology.SubscriptionRecord
	if err := a.do(ctx, func() {
		if sub, ok := a.db.Subscription(guid); ok {
			sub.Meta = *meta
			sub.Name = meta.Name
			sub.dirty = true
			rec = sub.Record()
		}
	}); err != nil {
		return err
	}
	if a.cache != nil && rec.GUID != "" {
		return a.cache.SaveSubscription(ctx, rec)
	}
	return nil
}
