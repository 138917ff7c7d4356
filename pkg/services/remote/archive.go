package remote

import (
	"context"
	"net/http"
	"net/url"

	"atlas-overwatch/pkg/ontology"
)

// ListFeatures returns every archived feature of the user.
func (c *Client) ListFeatures(ctx context.Context) ([]ontology.Feature, error) {
	var list ontology.List[ontology.Feature]
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/profile/feature"}, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// PutFeature creates or replaces an archived feature.
func (c *Client) PutFeature(ctx context.Context, feature ontology.Feature) error {
	feature.Origin = nil
	return c.call(ctx, request{method: http.MethodPut, path: "/api/profile/feature", body: feature}, nil)
}

func (c *Client) DeleteFeature(ctx context.Context, id string) error {
	return c.call(ctx, request{
		method: http.MethodDelete,
		path:   "/api/profile/feature/" + url.PathEscape(id),
	}, nil)
}

// DeletePath removes every archived feature under a path prefix.
func (c *Client) DeletePath(ctx context.Context, path string) error {
	return c.call(ctx, request{
		method: http.MethodDelete,
		path:   "/api/profile/feature",
		query:  url.Values{"path": {path}},
	}, nil)
}
