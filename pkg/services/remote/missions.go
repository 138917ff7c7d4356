package remote

import (
	"context"
	"net/http"
	"net/url"

	"atlas-overwatch/pkg/ontology"
)

const missionAuthHeader = "MissionAuthorization"

func missionPath(guid string, parts ...string) string {
	p := "/api/marti/missions/" + url.PathEscape(guid)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func missionHeaders(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{missionAuthHeader: token}
}

// Mission fetches mission metadata including its log entries.
func (c *Client) Mission(ctx context.Context, guid, token string) (*ontology.Mission, error) {
	var mission ontology.Mission
	err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    missionPath(guid),
		query:   url.Values{"logs": {"true"}},
		headers: missionHeaders(token),
	}, &mission)
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

func (c *Client) MissionRole(ctx context.Context, guid, token string) (*ontology.MissionRole, error) {
	var role ontology.MissionRole
	err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    missionPath(guid, "role"),
		headers: missionHeaders(token),
	}, &role)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *Client) MissionFeatures(ctx context.Context, guid, token string) (*ontology.FeatureCollection, error) {
	var fc ontology.FeatureCollection
	err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    missionPath(guid, "cot"),
		headers: missionHeaders(token),
	}, &fc)
	if err != nil {
		return nil, err
	}
	return &fc, nil
}

func (c *Client) MissionLogs(ctx context.Context, guid, token string) ([]ontology.MissionLog, error) {
	mission, err := c.Mission(ctx, guid, token)
	if err != nil {
		return nil, err
	}
	return mission.Logs, nil
}

func (c *Client) DeleteMissionFeature(ctx context.Context, guid, uid, token string) error {
	return c.call(ctx, request{
		method:  http.MethodDelete,
		path:    missionPath(guid, "cot", url.PathEscape(uid)),
		headers: missionHeaders(token),
	}, nil)
}

func (c *Client) Subscribe(ctx context.Context, guid, token string) error {
	return c.call(ctx, request{
		method:  http.MethodPut,
		path:    missionPath(guid, "subscription"),
		headers: missionHeaders(token),
	}, nil)
}

func (c *Client) Unsubscribe(ctx context.Context, guid, token string) error {
	return c.call(ctx, request{
		method:  http.MethodDelete,
		path:    missionPath(guid, "subscription"),
		headers: missionHeaders(token),
	}, nil)
}
