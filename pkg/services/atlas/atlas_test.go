package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/shared"

	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/paulmach/orb"
)

type fakeArchive struct {
	mu        sync.Mutex
	features  []ontology.Feature
	listErr   error
	deleteErr error
	puts      []string
	deletes   []string
	paths     []string
}

func (f *fakeArchive) ListFeatures(ctx context.Context) ([]ontology.Feature, error) {
	return f.features, f.listErr
}

func (f *fakeArchive) PutFeature(ctx context.Context, feature ontology.Feature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, feature.ID)
	return nil
}

func (f *fakeArchive) DeleteFeature(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeArchive) DeletePath(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return nil
}

type fakeCache struct {
	features []ontology.Feature
	saved    map[string]ontology.Feature
	records  map[string]ontology.SubscriptionRecord
	logs     map[string][]ontology.MissionLog
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		saved:   make(map[string]ontology.Feature),
		records: make(map[string]ontology.SubscriptionRecord),
		logs:    make(map[string][]ontology.MissionLog),
	}
}

func (c *fakeCache) SaveFeature(ctx context.Context, f ontology.Feature) error {
	c.saved[f.ID] = f
	return nil
}

func (c *fakeCache) DeleteFeature(ctx context.Context, id string) error {
	delete(c.saved, id)
	return nil
}

func (c *fakeCache) DeletePath(ctx context.Context, path string) error { return nil }

func (c *fakeCache) ListFeatures(ctx context.Context) ([]ontology.Feature, error) {
	return c.features, nil
}

func (c *fakeCache) SaveSubscription(ctx context.Context, r ontology.SubscriptionRecord) error {
	c.records[r.GUID] = r
	return nil
}

func (c *fakeCache) DeleteSubscription(ctx context.Context, guid string) error {
	delete(c.records, guid)
	return nil
}

func (c *fakeCache) SaveMissionLogs(ctx context.Context, guid string, logs []ontology.MissionLog) error {
	c.logs[guid] = logs
	return nil
}

type fakeMissions struct {
	features   []ontology.Feature
	logs       []ontology.MissionLog
	deleteErr  error
	subscribed []string
	deleted    []string
}

func (m *fakeMissions) Mission(ctx context.Context, guid, token string) (*ontology.Mission, error) {
	return &ontology.Mission{GUID: guid, Name: "ops"}, nil
}

func (m *fakeMissions) MissionRole(ctx context.Context, guid, token string) (*ontology.MissionRole, error) {
	return &ontology.MissionRole{Type: "MISSION_SUBSCRIBER"}, nil
}

func (m *fakeMissions) MissionFeatures(ctx context.Context, guid, token string) (*ontology.FeatureCollection, error) {
	fc := ontology.NewFeatureCollection(m.features)
	return &fc, nil
}

func (m *fakeMissions) MissionLogs(ctx context.Context, guid, token string) ([]ontology.MissionLog, error) {
	return m.logs, nil
}

func (m *fakeMissions) DeleteMissionFeature(ctx context.Context, guid, uid, token string) error {
	m.deleted = append(m.deleted, uid)
	return m.deleteErr
}

func (m *fakeMissions) Subscribe(ctx context.Context, guid, token string) error {
	m.subscribed = append(m.subscribed, guid)
	return nil
}

func (m *fakeMissions) Unsubscribe(ctx context.Context, guid, token string) error {
	return nil
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "tester"}).SignedString([]byte("secret"))
	assert.Equal(t, err, nil)
	return token
}

func newTestAtlas(t *testing.T, opts Options) *Atlas {
	t.Helper()
	cfg := DefaultConfig()
	// ticks are driven by hand through Diff
	cfg.DiffInterval = time.Hour
	cfg.BeaconInterval = time.Hour
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}

	a := New(cfg, opts)
	a.Start()
	t.Cleanup(a.Destroy)
	return a
}

func TestInitLoadsArchive(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{features: []ontology.Feature{pointFeature("saved", 1, 2, ontology.Properties{})}}
	cache := newFakeCache()
	a := newTestAtlas(t, Options{Archive: archive, Cache: cache})

	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	feat, err := a.Get(ctx, "saved", false)
	assert.Equal(t, err, nil)
	assert.Equal(t, feat.Properties.Archived, true)
	_, cached := cache.saved["saved"]
	assert.Equal(t, cached, true)

	// loading with SkipSave never writes back
	assert.Equal(t, len(archive.puts), 0)

	p, _ := a.Profile(ctx)
	assert.Equal(t, p.Username, "tester")
}

func TestInitFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{listErr: errors.New("connection refused")}
	cache := newFakeCache()
	cache.features = []ontology.Feature{pointFeature("cached", 1, 2, ontology.Properties{Archived: true})}
	a := newTestAtlas(t, Options{Archive: archive, Cache: cache})

	err := a.Init(ctx, testToken(t))
	assert.NotEqual(t, err, nil)

	_, err = a.Get(ctx, "cached", false)
	assert.Equal(t, err, nil)
}

func TestInitWithoutIdentity(t *testing.T) {
	a := newTestAtlas(t, Options{})
	err := a.Init(context.Background(), "")
	assert.Equal(t, errors.Is(err, ErrProfileNotLoaded), true)
}

func TestAddPersistsArchived(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{}
	a := newTestAtlas(t, Options{Archive: archive})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	_, err := a.Add(ctx, pointFeature("a", 1, 2, ontology.Properties{Archived: true}), AddOptions{})
	assert.Equal(t, err, nil)
	_, err = a.Add(ctx, pointFeature("b", 1, 2, ontology.Properties{}), AddOptions{})
	assert.Equal(t, err, nil)

	assert.Equal(t, archive.puts, []string{"a"})
}

func TestRemoveRollsBackOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{deleteErr: errors.New("server error")}
	a := newTestAtlas(t, Options{Archive: archive})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	_, err := a.Add(ctx, pointFeature("a", 1, 2, ontology.Properties{Archived: true}), AddOptions{})
	assert.Equal(t, err, nil)
	_, _ = a.Diff(ctx)

	err = a.Remove(ctx, "a", RemoveOptions{})
	assert.NotEqual(t, err, nil)
	assert.Equal(t, archive.deletes, []string{"a"})

	_, err = a.Get(ctx, "a", false)
	assert.Equal(t, err, nil)
	diff, _ := a.Diff(ctx)
	assert.Equal(t, diff.Empty(), true)

	// skipping the network removes locally only
	assert.Equal(t, a.Remove(ctx, "a", RemoveOptions{SkipNetwork: true}), nil)
	_, err = a.Get(ctx, "a", false)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}

func TestDestroyRejectsOperations(t *testing.T) {
	ctx := context.Background()
	a := newTestAtlas(t, Options{})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	a.Destroy()
	_, err := a.Add(ctx, pointFeature("a", 1, 2, ontology.Properties{}), AddOptions{})
	assert.Equal(t, errors.Is(err, ErrDestroyed), true)
}

func message(t *testing.T, typ string, feat ontology.Feature) shared.Message {
	t.Helper()
	raw, err := json.Marshal(feat)
	assert.Equal(t, err, nil)
	return shared.Message{Type: typ, Data: raw}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	a := newTestAtlas(t, Options{})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	err := a.Dispatch(ctx, message(t, shared.MessageCOT, pointFeature("remote", 1, 2, ontology.Properties{Callsign: "R1"})))
	assert.Equal(t, err, nil)
	feat, err := a.Get(ctx, "remote", false)
	assert.Equal(t, err, nil)
	assert.Equal(t, feat.Properties.Callsign, "R1")

	del := ontology.Feature{
		ID:       "task-1",
		Geometry: pointFeature("x", 0, 0, ontology.Properties{}).Geometry,
		Properties: ontology.Properties{
			Type:  shared.TaskDelete,
			Links: []ontology.Link{{UID: "remote", Relation: "none"}},
		},
	}
	assert.Equal(t, a.Dispatch(ctx, message(t, shared.MessageTask, del)), nil)
	_, err = a.Get(ctx, "remote", false)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)

	unknown := ontology.Feature{ID: "task-2", Properties: ontology.Properties{Type: "t-x-z"}}
	assert.Equal(t, a.Dispatch(ctx, message(t, shared.MessageTask, unknown)), nil)

	assert.Equal(t, a.Dispatch(ctx, shared.Message{Type: "mystery"}), nil)
	assert.NotEqual(t, a.Dispatch(ctx, shared.Message{Type: shared.MessageError, Properties: json.RawMessage(`{"message":"boom"}`)}), nil)
}

func TestLoadMission(t *testing.T) {
	ctx := context.Background()
	missions := &fakeMissions{
		features: []ontology.Feature{pointFeature("m-1", 1, 2, ontology.Properties{})},
		logs:     []ontology.MissionLog{{ID: "log-1", Content: "checkpoint"}},
	}
	cache := newFakeCache()
	a := newTestAtlas(t, Options{Missions: missions, Cache: cache})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	rec, err := a.LoadMission(ctx, "guid-1", "mission-token")
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.Name, "ops")
	assert.Equal(t, missions.subscribed, []string{"guid-1"})
	assert.Equal(t, cache.records["guid-1"].Token, "mission-token")

	fc, err := a.MissionCollection(ctx, "guid-1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fc.Features), 1)
	assert.Equal(t, fc.Features[0].Origin.Mode, ontology.OriginMission)

	// mission features are never part of the live view
	_, err = a.Get(ctx, "m-1", false)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
	_, err = a.Get(ctx, "m-1", true)
	assert.Equal(t, err, nil)

	task := missionTask(shared.TaskMissionLog, "guid-1")
	assert.Equal(t, a.Dispatch(ctx, message(t, shared.MessageTask, task)), nil)
	assert.Equal(t, len(cache.logs["guid-1"]), 1)

	assert.Equal(t, a.Remove(ctx, "m-1", RemoveOptions{}), nil)
	assert.Equal(t, missions.deleted, []string{"m-1"})

	assert.Equal(t, a.DeleteMission(ctx, "guid-1"), nil)
	_, err = a.MissionCollection(ctx, "guid-1")
	assert.Equal(t, errors.Is(err, ErrMissionNotLoaded), true)
	_, cached := cache.records["guid-1"]
	assert.Equal(t, cached, false)
}

func TestFilterAndTouching(t *testing.T) {
	ctx := context.Background()
	a := newTestAtlas(t, Options{})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	_, _ = a.Add(ctx, pointFeature("hostile", 5, 5, ontology.Properties{Type: "a-h-G"}), AddOptions{})
	_, _ = a.Add(ctx, pointFeature("friend", 50, 50, ontology.Properties{Type: "a-f-G", Group: &ontology.Group{Name: "Red"}}), AddOptions{})

	matched, err := a.Filter(ctx, `properties.type startsWith "a-h"`, FilterOptions{})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(matched), 1)
	assert.Equal(t, matched[0].ID, "hostile")

	// entities where evaluation fails are simply excluded
	matched, err = a.Filter(ctx, `properties.group.name == "Red"`, FilterOptions{})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(matched), 1)
	assert.Equal(t, matched[0].ID, "friend")

	_, err = a.Filter(ctx, `properties.type ==`, FilterOptions{})
	assert.NotEqual(t, err, nil)

	matched, err = a.Filter(ctx, `true`, FilterOptions{Limit: 1})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(matched), 1)

	touching, err := a.Touching(ctx, square())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(touching), 1)
	assert.Equal(t, touching[0].ID, "hostile")
}

func TestTickPublishes(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	a := newTestAtlas(t, Options{Sink: sink})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	_, _ = a.Add(ctx, pointFeature("a", 1, 2, ontology.Properties{}), AddOptions{})
	assert.Equal(t, a.do(ctx, a.tick), nil)
	assert.Equal(t, a.do(ctx, a.tick), nil)

	assert.Equal(t, len(sink.diffs), 1)
	assert.Equal(t, sink.diffs[0].Add[0].ID, "a")
}

func TestBeacon(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	a := newTestAtlas(t, Options{Sender: sender})
	assert.Equal(t, a.Init(ctx, testToken(t)), nil)

	assert.Equal(t, a.do(ctx, a.beacon), nil)

	self, err := a.Get(ctx, "ANDROID-CloudTAK-tester", false)
	assert.Equal(t, err, nil)
	assert.Equal(t, self.Properties.How, "m-g")
	assert.Equal(t, len(sender.sent), 1)
}

type captureSink struct {
	diffs    []ontology.Diff
	missions map[string]ontology.RenderedCollection
}

func (s *captureSink) PublishDiff(diff ontology.Diff) error {
	s.diffs = append(s.diffs, diff)
	return nil
}

func (s *captureSink) PublishMission(guid string, collection ontology.RenderedCollection) error {
	if s.missions == nil {
		s.missions = make(map[string]ontology.RenderedCollection)
	}
	s.missions[guid] = collection
	return nil
}

func square() orb.Polygon {
	return orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
}
