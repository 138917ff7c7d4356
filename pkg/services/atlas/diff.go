package atlas

import (
	"time"

	"atlas-overwatch/pkg/ontology"
)

// renderable geometry types. Anything else is stored but never diffed.
var renderable = map[string]bool{
	"Point":      true,
	"LineString": true,
	"Polygon":    true,
}

func (c *COT) renderable() bool {
	return renderable[c.GeometryType()]
}

// opacityFor returns the staleness opacity for an entity, ok is false when
// the entity is not opacity managed.
func (c *COT) opacityFor(now time.Time) (float64, bool) {
	if c.properties.Archived {
		return 0, false
	}
	stale, ok := c.properties.StaleTime()
	if !ok {
		return 0, false
	}
	if now.After(stale) {
		return staleOpacity, true
	}
	return freshOpacity, true
}

// Diff drains the pending queues into one renderer diff. Entities are visited
// in id order so output is deterministic.
func (db *Database) Diff(now time.Time, policy StalePolicy) ontology.Diff {
	diff := ontology.NewDiff()

	// Staleness and hide pass over entities already in the view.
	for _, id := range sortedKeys(db.entities) {
		c := db.entities[id]
		if _, ok := db.pendingHide[id]; ok {
			if c.renderable() {
				diff.Remove = append(diff.Remove, id)
			}
			continue
		}
		if _, ok := db.hidden[id]; ok {
			continue
		}
		if db.queued(id) {
			continue
		}
		if c.properties.Archived {
			continue
		}

		stale, ok := c.properties.StaleTime()
		if !ok {
			continue
		}
		if policy.Expired(now, stale) {
			if c.renderable() {
				diff.Remove = append(diff.Remove, id)
			}
			delete(db.entities, id)
			db.expired[id] = c
			continue
		}
		if opacity, managed := c.opacityFor(now); managed && c.setOpacity(opacity) && c.renderable() {
			diff.Update = append(diff.Update, c.renderedUpdate())
		}
	}
	clear(db.pendingHide)

	for _, id := range sortedKeys(db.pendingUnhide) {
		if _, hidden := db.hidden[id]; hidden {
			continue
		}
		if c, ok := db.entities[id]; ok && c.renderable() {
			diff.Add = append(diff.Add, c.Rendered())
		}
	}
	clear(db.pendingUnhide)

	queued := make(map[string]*COT, len(db.pendingAdd)+len(db.pendingUpdate))
	for id, c := range db.pendingAdd {
		queued[id] = c
	}
	for id, c := range db.pendingUpdate {
		queued[id] = c
	}
	for _, id := range sortedKeys(queued) {
		c := queued[id]
		_, wasLive := db.entities[id]
		db.entities[id] = c
		delete(db.expired, id)

		if opacity, managed := c.opacityFor(now); managed {
			c.setOpacity(opacity)
		}
		if _, hidden := db.hidden[id]; hidden || !c.renderable() {
			continue
		}
		if wasLive {
			diff.Update = append(diff.Update, c.renderedUpdate())
		} else {
			diff.Add = append(diff.Add, c.Rendered())
		}
	}
	clear(db.pendingAdd)
	clear(db.pendingUpdate)

	for _, id := range sortedKeys(db.pendingDelete) {
		diff.Remove = append(diff.Remove, id)
		delete(db.entities, id)
	}
	clear(db.pendingDelete)

	return diff
}

func (db *Database) queued(id string) bool {
	if _, ok := db.pendingAdd[id]; ok {
		return true
	}
	_, ok := db.pendingUpdate[id]
	return ok
}

// Collection is the full rendered view for a renderer's first load.
func (db *Database) Collection() ontology.RenderedCollection {
	var features []ontology.RenderedFeature
	for _, id := range db.currentIDs(false) {
		if _, hidden := db.hidden[id]; hidden {
			continue
		}
		if c := db.Get(id); c != nil && c.renderable() {
			features = append(features, c.Rendered())
		}
	}
	return ontology.NewRenderedCollection(features)
}
