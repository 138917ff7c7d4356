package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"atlas-overwatch/pkg/ontology"

	"github.com/go-playground/assert/v2"
)

type recorded struct {
	method  string
	path    string
	query   string
	auth    string
	mission string
	body    string
}

func newTestServer(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method:  r.Method,
			path:    r.URL.EscapedPath(),
			query:   r.URL.RawQuery,
			auth:    r.Header.Get("Authorization"),
			mission: r.Header.Get(missionAuthHeader),
			body:    string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.Token = "user-token"
	return NewClient(cfg), &calls
}

func TestListFeatures(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{
		"total": 1,
		"items": [{"id": "a", "type": "Feature", "path": "/ops/",
			"properties": {"type": "u-d-p", "archived": true, "custom": "kept"},
			"geometry": {"type": "Point", "coordinates": [1, 2]}}]
	}`)

	features, err := client.ListFeatures(context.Background())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(features), 1)
	assert.Equal(t, features[0].Path, "/ops/")
	assert.Equal(t, features[0].Properties.Archived, true)
	assert.Equal(t, features[0].Properties.Extra["custom"], "kept")

	assert.Equal(t, (*calls)[0].method, http.MethodGet)
	assert.Equal(t, (*calls)[0].path, "/api/profile/feature")
	assert.Equal(t, (*calls)[0].auth, "Bearer user-token")
}

func TestArchiveWrites(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{}`)
	ctx := context.Background()

	feat := ontology.Feature{
		ID:     "a",
		Type:   "Feature",
		Origin: &ontology.Origin{Mode: ontology.OriginConnection},
	}
	assert.Equal(t, client.PutFeature(ctx, feat), nil)
	assert.Equal(t, client.DeleteFeature(ctx, "a b"), nil)
	assert.Equal(t, client.DeletePath(ctx, "/ops/"), nil)

	tests := []struct {
		method string
		path   string
		query  string
	}{
		{method: http.MethodPut, path: "/api/profile/feature"},
		{method: http.MethodDelete, path: "/api/profile/feature/a%20b"},
		{method: http.MethodDelete, path: "/api/profile/feature", query: "path=%2Fops%2F"},
	}
	for i, tt := range tests {
		assert.Equal(t, (*calls)[i].method, tt.method)
		assert.Equal(t, (*calls)[i].path, tt.path)
		assert.Equal(t, (*calls)[i].query, tt.query)
	}

	// the origin is local bookkeeping and never sent
	var sent map[string]any
	assert.Equal(t, json.Unmarshal([]byte((*calls)[0].body), &sent), nil)
	_, hasOrigin := sent["origin"]
	assert.Equal(t, hasOrigin, false)
}

func TestMissionRequests(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{"guid": "g1", "name": "ops", "logs": [{"id": "l1", "content": "hello"}]}`)
	ctx := context.Background()

	mission, err := client.Mission(ctx, "g1", "mission-token")
	assert.Equal(t, err, nil)
	assert.Equal(t, mission.Name, "ops")
	assert.Equal(t, (*calls)[0].path, "/api/marti/missions/g1")
	assert.Equal(t, (*calls)[0].query, "logs=true")
	assert.Equal(t, (*calls)[0].mission, "mission-token")

	logs, err := client.MissionLogs(ctx, "g1", "")
	assert.Equal(t, err, nil)
	assert.Equal(t, logs[0].Content, "hello")
	assert.Equal(t, (*calls)[1].mission, "")

	assert.Equal(t, client.DeleteMissionFeature(ctx, "g1", "u1", "t"), nil)
	assert.Equal(t, (*calls)[2].method, http.MethodDelete)
	assert.Equal(t, (*calls)[2].path, "/api/marti/missions/g1/cot/u1")

	assert.Equal(t, client.Subscribe(ctx, "g1", ""), nil)
	assert.Equal(t, (*calls)[3].method, http.MethodPut)
	assert.Equal(t, (*calls)[3].path, "/api/marti/missions/g1/subscription")
}

func TestProfile(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{"username": "tester", "tak_callsign": "ALPHA", "tak_loc_freq": 2000}`)
	ctx := context.Background()

	rec, err := client.Profile(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.Username, "tester")
	assert.Equal(t, rec.TakLocFreq, 2000)

	callsign := "BRAVO"
	assert.Equal(t, client.UpdateProfile(ctx, ontology.ProfileUpdate{TakCallsign: &callsign}), nil)
	assert.Equal(t, (*calls)[1].method, http.MethodPatch)
	assert.Equal(t, (*calls)[1].body, `{"tak_callsign":"BRAVO"}`)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		message  string
		notFound bool
	}{
		{name: "json message", status: http.StatusNotFound, body: `{"status": 404, "message": "no such feature"}`, message: "no such feature", notFound: true},
		{name: "plain body", status: http.StatusInternalServerError, body: "boom", message: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestServer(t, tt.status, tt.body)
			err := client.DeleteFeature(context.Background(), "a")

			var apiErr *APIError
			assert.Equal(t, errors.As(err, &apiErr), true)
			assert.Equal(t, apiErr.Status, tt.status)
			assert.Equal(t, apiErr.Message, tt.message)
			assert.Equal(t, IsNotFound(err), tt.notFound)
		})
	}
}
