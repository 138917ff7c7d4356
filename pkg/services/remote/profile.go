package remote

import (
	"context"
	"net/http"

	"atlas-overwatch/pkg/ontology"
)

func (c *Client) Profile(ctx context.Context) (*ontology.ProfileRecord, error) {
	var rec ontology.ProfileRecord
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/profile"}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update ontology.ProfileUpdate) error {
	return c.call(ctx, request{method: http.MethodPatch, path: "/api/profile", body: update}, nil)
}
