package atlas

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/shared"

	"github.com/google/uuid"
)

type AddOptions struct {
	// Mission routes the feature into the named mission subscription.
	Mission string
	// SkipSave suppresses archive persistence.
	SkipSave bool
	// Authored marks a feature created by the local user.
	Authored bool
}

type AddResult struct {
	COT     *COT
	Mission string
	Created bool
	Visual  bool
	Persist bool
}

type ClearOptions struct {
	IgnoreArchived bool
	SkipNetwork    bool
}

// removal records where an entity was held so the removal can be undone.
type removal struct {
	cot      *COT
	mission  string
	archived bool
	live     bool
	added    bool
	updated  bool
	expired  bool
	hidden   bool
}

type DatabaseOptions struct {
	Profile  *Profile
	Icons    IconSet
	Sender   Sender
	Notifier Notifier
	Now      func() time.Time
}

// Database is the live feature store. It is not safe for concurrent use; the
// Atlas engine goroutine owns it.
type Database struct {
	entities map[string]*COT
	expired  map[string]*COT
	hidden   map[string]struct{}

	pendingAdd    map[string]*COT
	pendingUpdate map[string]*COT
	pendingDelete map[string]struct{}
	pendingHide   map[string]struct{}
	pendingUnhide map[string]struct{}

	subscriptions       map[string]*Subscription
	subscriptionPending map[string]string
	activeMission       string

	profile       *Profile
	profileUpdate *ontology.ProfileUpdate

	icons    IconSet
	sender   Sender
	notifier Notifier
	now      func() time.Time
}

func NewDatabase(opts DatabaseOptions) *Database {
	db := &Database{
		entities:            make(map[string]*COT),
		expired:             make(map[string]*COT),
		hidden:              make(map[string]struct{}),
		pendingAdd:          make(map[string]*COT),
		pendingUpdate:       make(map[string]*COT),
		pendingDelete:       make(map[string]struct{}),
		pendingHide:         make(map[string]struct{}),
		pendingUnhide:       make(map[string]struct{}),
		subscriptions:       make(map[string]*Subscription),
		subscriptionPending: make(map[string]string),
		profile:             opts.Profile,
		icons:               opts.Icons,
		sender:              opts.Sender,
		notifier:            opts.Notifier,
		now:                 opts.Now,
	}
	if db.profile == nil {
		db.profile = &Profile{}
	}
	if db.sender == nil {
		db.sender = nopSender{}
	}
	if db.notifier == nil {
		db.notifier = nopNotifier{}
	}
	if db.now == nil {
		db.now = time.Now
	}
	return db
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// Get finds a connection entity whether it is live, queued or expired.
func (db *Database) Get(id string) *COT {
	if c, ok := db.entities[id]; ok {
		return c
	}
	if c, ok := db.pendingAdd[id]; ok {
		return c
	}
	if c, ok := db.pendingUpdate[id]; ok {
		return c
	}
	if c, ok := db.expired[id]; ok {
		return c
	}
	return nil
}

// GetMission finds an entity in any loaded mission subscription.
func (db *Database) GetMission(id string) (*COT, string) {
	for _, guid := range sortedKeys(db.subscriptions) {
		if c, ok := db.subscriptions[guid].entities[id]; ok {
			return c, guid
		}
	}
	return nil, ""
}

func (db *Database) enqueueUpdate(c *COT) {
	if _, ok := db.pendingAdd[c.ID]; ok {
		return
	}
	delete(db.expired, c.ID)
	delete(db.pendingDelete, c.ID)
	db.pendingUpdate[c.ID] = c
}

// Add creates or updates an entity, routing it to a mission subscription or
// the live connection set.
func (db *Database) Add(feat ontology.Feature, opts AddOptions) (*AddResult, error) {
	if _, err := db.profile.UID(); err != nil {
		return nil, err
	}
	if feat.ID == "" {
		feat.ID = uuid.NewString()
	}
	if feat.Geometry == nil {
		return nil, fmt.Errorf("failed to add feature %s: missing geometry", feat.ID)
	}
	if feat.Type == "" {
		feat.Type = "Feature"
	}
	feat.Properties.ID = feat.ID

	existing := db.Get(feat.ID)
	if opts.Authored && existing == nil && feat.Properties.Creator == nil {
		if inMission, _ := db.GetMission(feat.ID); inMission == nil {
			if creator, err := db.profile.Creator(db.now()); err == nil {
				feat.Properties.Creator = creator
			}
		}
	}

	guid := opts.Mission
	pendingGUID, pending := db.subscriptionPending[feat.ID]
	if guid == "" && pending {
		guid = pendingGUID
	}
	if guid == "" && feat.Origin != nil && feat.Origin.Mode == ontology.OriginMission {
		guid = feat.Origin.ModeID
	}
	if guid == "" && opts.Authored && existing == nil && db.activeMission != "" {
		guid = db.activeMission
	}
	if guid != "" {
		res, err := db.addToMission(guid, feat, opts.Authored)
		if err != nil {
			return nil, err
		}
		if pending {
			delete(db.subscriptionPending, feat.ID)
		}
		return res, nil
	}

	var res *AddResult
	for _, guid := range sortedKeys(db.subscriptions) {
		sub := db.subscriptions[guid]
		c, ok := sub.entities[feat.ID]
		if !ok {
			continue
		}
		visual := c.Update(patchFrom(feat))
		sub.UpdateFeature(c, true)
		db.notifyMission(guid, feat.ID)
		if res == nil {
			res = &AddResult{COT: c, Mission: guid, Visual: visual}
		}
	}
	if res != nil {
		return res, nil
	}

	if existing != nil {
		visual, changed := existing.update(patchFrom(feat))
		return &AddResult{
			COT:     existing,
			Visual:  visual,
			Persist: changed && !opts.SkipSave && existing.persistable(),
		}, nil
	}

	c := newCOT(db, feat, ontology.Origin{Mode: ontology.OriginConnection})
	if c.properties.Archived {
		db.notifier.Notify(shared.EventTypeArchiveAdded, map[string]any{"id": c.ID, "path": c.Path})
	}
	return &AddResult{
		COT:     c,
		Created: true,
		Visual:  true,
		Persist: !opts.SkipSave && c.persistable(),
	}, nil
}

func (db *Database) addToMission(guid string, feat ontology.Feature, authored bool) (*AddResult, error) {
	sub, ok := db.subscriptions[guid]
	if !ok {
		return nil, fmt.Errorf("failed to add feature %s to mission %s: %w", feat.ID, guid, ErrMissionNotLoaded)
	}

	res := &AddResult{Mission: guid}
	if c, ok := sub.entities[feat.ID]; ok {
		res.COT = c
		res.Visual = c.Update(patchFrom(feat))
	} else {
		res.COT = newCOT(db, feat, ontology.Origin{Mode: ontology.OriginMission, ModeID: guid})
		res.Created = true
		res.Visual = true
	}
	sub.UpdateFeature(res.COT, !authored)
	db.notifyMission(guid, feat.ID)
	return res, nil
}

func (db *Database) notifyMission(guid, uid string) {
	db.notifier.Notify(shared.EventTypeMissionChange, map[string]any{"guid": guid, "uid": uid})
}

// remove drops a connection entity, or failing that a mission entity, and
// queues the renderer removal. It returns nil when the id is unknown.
func (db *Database) remove(id string) *removal {
	c := db.Get(id)
	if c == nil {
		mc, guid := db.GetMission(id)
		if mc == nil {
			return nil
		}
		db.subscriptions[guid].DeleteFeature(id)
		return &removal{cot: mc, mission: guid}
	}

	r := &removal{cot: c, archived: c.properties.Archived}
	_, r.live = db.entities[id]
	_, r.added = db.pendingAdd[id]
	_, r.updated = db.pendingUpdate[id]
	_, r.expired = db.expired[id]
	_, r.hidden = db.hidden[id]

	delete(db.entities, id)
	delete(db.pendingAdd, id)
	delete(db.pendingUpdate, id)
	delete(db.expired, id)
	delete(db.hidden, id)
	delete(db.pendingHide, id)
	delete(db.pendingUnhide, id)
	db.pendingDelete[id] = struct{}{}

	for linked := range c.links {
		db.remove(linked)
	}
	return r
}

// Remove drops an entity locally. The caller is responsible for the remote
// delete and for calling restore if that fails.
func (db *Database) Remove(id string) bool {
	return db.remove(id) != nil
}

// restore undoes a removal after a failed remote delete.
func (db *Database) restore(r *removal) {
	id := r.cot.ID
	if r.mission != "" {
		if sub, ok := db.subscriptions[r.mission]; ok {
			sub.entities[id] = r.cot
			sub.dirty = true
		}
		return
	}

	if _, queued := db.pendingDelete[id]; queued {
		delete(db.pendingDelete, id)
		if r.live {
			db.entities[id] = r.cot
		}
	} else if r.live {
		db.pendingAdd[id] = r.cot
	}
	if r.added {
		db.pendingAdd[id] = r.cot
	}
	if r.updated {
		db.pendingUpdate[id] = r.cot
	}
	if r.expired {
		db.expired[id] = r.cot
	}
	if r.hidden {
		db.hidden[id] = struct{}{}
	}
}

// Hide removes an entity from the view without deleting it.
func (db *Database) Hide(id string) {
	if db.Get(id) == nil {
		log.Printf("[Atlas] warning: cannot hide unknown feature %s", id)
		return
	}
	if _, ok := db.hidden[id]; ok {
		return
	}
	db.hidden[id] = struct{}{}
	db.pendingHide[id] = struct{}{}
}

// Unhide returns a hidden entity to the view on the next diff.
func (db *Database) Unhide(id string) {
	if _, ok := db.hidden[id]; !ok {
		log.Printf("[Atlas] warning: cannot unhide feature %s that is not hidden", id)
		return
	}
	delete(db.hidden, id)
	db.pendingUnhide[id] = struct{}{}
}

// Clear removes every connection entity, keeping archived ones when asked.
func (db *Database) Clear(opts ClearOptions) []*removal {
	var removed []*removal
	for _, id := range db.currentIDs(true) {
		c := db.Get(id)
		if c == nil {
			continue
		}
		if opts.IgnoreArchived && c.properties.Archived {
			continue
		}
		if r := db.remove(id); r != nil {
			removed = append(removed, r)
		}
	}
	return removed
}

// RemovePath removes archived entities whose path starts with path.
func (db *Database) RemovePath(path string) []*removal {
	var removed []*removal
	for _, id := range db.currentIDs(true) {
		c := db.Get(id)
		if c == nil || !c.properties.Archived || !strings.HasPrefix(c.Path, path) {
			continue
		}
		if r := db.remove(id); r != nil {
			removed = append(removed, r)
		}
	}
	return removed
}

// currentIDs lists known connection entities in id order.
func (db *Database) currentIDs(includeExpired bool) []string {
	ids := make(map[string]struct{}, len(db.entities)+len(db.pendingAdd))
	for id := range db.entities {
		ids[id] = struct{}{}
	}
	for id := range db.pendingAdd {
		ids[id] = struct{}{}
	}
	for id := range db.pendingUpdate {
		ids[id] = struct{}{}
	}
	if includeExpired {
		for id := range db.expired {
			ids[id] = struct{}{}
		}
	}
	return sortedKeys(ids)
}

// ChangeResult lists follow-ups from a mission change task that need the
// mission API.
type ChangeResult struct {
	RefreshLogs []string
	RefreshMeta []string
}

// SubscriptionChange applies a t-x-m-c* task to the loaded subscriptions.
func (db *Database) SubscriptionChange(task ontology.Feature) ChangeResult {
	var res ChangeResult
	m := task.Properties.Mission

	switch task.Properties.Type {
	case shared.TaskMissionChange:
		if m == nil {
			log.Printf("[Atlas] error: %v", ErrNoMissionGUID)
			return res
		}
		for _, change := range m.MissionChanges {
			if m.GUID == "" {
				log.Printf("[Atlas] error: %s %s: %v", change.Type, change.ContentUID, ErrNoMissionGUID)
				continue
			}

			switch change.Type {
			case shared.ChangeAddContent:
				// buffered even before the mission is loaded
				db.subscriptionPending[change.ContentUID] = m.GUID
			case shared.ChangeRemoveContent:
				sub, ok := db.subscriptions[m.GUID]
				if !ok {
					log.Printf("[Atlas] error: cannot remove %s from mission %s: %v", change.ContentUID, m.GUID, ErrMissionNotLoaded)
					continue
				}
				if sub.DeleteFeature(change.ContentUID) {
					db.notifyMission(m.GUID, change.ContentUID)
				}
			default:
				log.Printf("[Atlas] warning: unknown mission change type %s", change.Type)
			}
		}
	case shared.TaskMissionLog:
		if m == nil || m.GUID == "" {
			log.Printf("[Atlas] error: log change: %v", ErrNoMissionGUID)
			return res
		}
		res.RefreshLogs = append(res.RefreshLogs, m.GUID)
	case shared.TaskMissionMeta:
		if m == nil || m.GUID == "" {
			log.Printf("[Atlas] error: metadata change: %v", ErrNoMissionGUID)
			return res
		}
		res.RefreshMeta = append(res.RefreshMeta, m.GUID)
	default:
		log.Printf("[Atlas] warning: unknown mission task type %s", task.Properties.Type)
	}
	return res
}

// MakeActiveMission sets the mission authored features are routed into. An
// empty guid clears it.
func (db *Database) MakeActiveMission(guid string) error {
	if guid == "" {
		db.activeMission = ""
		return nil
	}
	if _, ok := db.subscriptions[guid]; !ok {
		return fmt.Errorf("failed to activate mission %s: %w", guid, ErrMissionNotLoaded)
	}
	db.activeMission = guid
	return nil
}

func (db *Database) ActiveMission() string {
	return db.activeMission
}

// Subscription returns a loaded mission subscription.
func (db *Database) Subscription(guid string) (*Subscription, bool) {
	sub, ok := db.subscriptions[guid]
	return sub, ok
}

// Subscribe returns the subscription for guid, creating an empty one.
func (db *Database) Subscribe(guid, token string) *Subscription {
	sub, ok := db.subscriptions[guid]
	if !ok {
		sub = newSubscription(db, guid, token)
		db.subscriptions[guid] = sub
	}
	if token != "" {
		sub.Token = token
	}
	return sub
}

// Unsubscribe drops a mission subscription. Live connection entities are
// untouched.
func (db *Database) Unsubscribe(guid string) bool {
	if _, ok := db.subscriptions[guid]; !ok {
		return false
	}
	delete(db.subscriptions, guid)
	if db.activeMission == guid {
		db.activeMission = ""
	}
	for uid, pending := range db.subscriptionPending {
		if pending == guid {
			delete(db.subscriptionPending, uid)
		}
	}
	return true
}

// takeProfileUpdate returns and clears the pending self-profile patch.
func (db *Database) takeProfileUpdate() *ontology.ProfileUpdate {
	update := db.profileUpdate
	db.profileUpdate = nil
	return update
}
