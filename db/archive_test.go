package db

import (
	"context"
	"path/filepath"
	"testing"

	"atlas-overwatch/pkg/ontology"

	"github.com/go-playground/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func newTestArchive(t *testing.T) (*Service, *Archive) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "atlas.db")

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, NewArchive(svc)
}

func testFeature(id, path string) ontology.Feature {
	return ontology.Feature{
		ID:   id,
		Type: "Feature",
		Path: path,
		Properties: ontology.Properties{
			Type:     "u-d-p",
			Callsign: id,
			Archived: true,
			Extra:    map[string]any{"custom": "value"},
		},
		Geometry: geojson.NewGeometry(orb.Point{1, 2}),
	}
}

func TestSchema(t *testing.T) {
	svc, _ := newTestArchive(t)
	assert.Equal(t, svc.VerifySchema(), nil)
	assert.Equal(t, svc.Health(), nil)

	version, err := svc.GetSchemaVersion()
	assert.Equal(t, err, nil)
	assert.Equal(t, version, "1")

	// migrating an initialized cache is a no-op
	assert.Equal(t, svc.MigrateSchema(), nil)
	assert.Equal(t, svc.VerifySchema(), nil)
}

func TestReopenKeepsRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "atlas.db")
	ctx := context.Background()

	svc, err := New(cfg)
	assert.Equal(t, err, nil)
	assert.Equal(t, NewArchive(svc).SaveFeature(ctx, testFeature("a", "/")), nil)
	assert.Equal(t, svc.Close(), nil)

	svc, err = New(cfg)
	assert.Equal(t, err, nil)
	defer svc.Close()
	features, err := NewArchive(svc).ListFeatures(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(features), 1)
}

func TestFeatures(t *testing.T) {
	_, archive := newTestArchive(t)
	ctx := context.Background()

	assert.Equal(t, archive.SaveFeature(ctx, testFeature("b", "/ops/north/")), nil)
	assert.Equal(t, archive.SaveFeature(ctx, testFeature("a", "/ops/")), nil)
	assert.Equal(t, archive.SaveFeature(ctx, testFeature("c", "")), nil)

	updated := testFeature("a", "/ops/")
	updated.Properties.Callsign = "renamed"
	assert.Equal(t, archive.SaveFeature(ctx, updated), nil)

	features, err := archive.ListFeatures(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(features), 3)
	assert.Equal(t, features[0].ID, "a")
	assert.Equal(t, features[0].Properties.Callsign, "renamed")
	assert.Equal(t, features[0].Properties.Archived, true)
	assert.Equal(t, features[0].Properties.Extra["custom"], "value")
	assert.Equal(t, features[0].Geometry.Geometry(), orb.Geometry(orb.Point{1, 2}))
	assert.Equal(t, features[2].Path, "/")

	assert.Equal(t, archive.DeletePath(ctx, "/ops/"), nil)
	features, err = archive.ListFeatures(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(features), 1)
	assert.Equal(t, features[0].ID, "c")

	assert.Equal(t, archive.DeleteFeature(ctx, "c"), nil)
	features, err = archive.ListFeatures(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(features), 0)
}

func TestSubscriptions(t *testing.T) {
	_, archive := newTestArchive(t)
	ctx := context.Background()

	rec := ontology.SubscriptionRecord{
		GUID:       "g1",
		Name:       "ops",
		Token:      "tok",
		Subscribed: true,
		Meta:       ontology.Mission{GUID: "g1", Name: "ops", Keywords: []string{"alpha"}},
		Role:       ontology.MissionRole{Type: "MISSION_OWNER", Permissions: []string{"MISSION_WRITE"}},
	}
	assert.Equal(t, archive.SaveSubscription(ctx, rec), nil)

	logs := []ontology.MissionLog{
		{ID: "l2", Content: "second", Created: "2024-01-02T00:00:00Z"},
		{ID: "l1", Content: "first", Created: "2024-01-01T00:00:00Z"},
	}
	assert.Equal(t, archive.SaveMissionLogs(ctx, "g1", logs), nil)

	records, err := archive.ListSubscriptions(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].Subscribed, true)
	assert.Equal(t, records[0].Meta.Keywords, []string{"alpha"})
	assert.Equal(t, records[0].Role.CanEdit(), true)

	got, err := archive.ListMissionLogs(ctx, "g1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Content, "first")

	// logs are replaced, not appended
	assert.Equal(t, archive.SaveMissionLogs(ctx, "g1", logs[:1]), nil)
	got, err = archive.ListMissionLogs(ctx, "g1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 1)

	assert.Equal(t, archive.DeleteSubscription(ctx, "g1"), nil)
	records, err = archive.ListSubscriptions(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 0)
	got, err = archive.ListMissionLogs(ctx, "g1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 0)
}
