package ontology

import "github.com/paulmach/orb/geojson"

// FilterRequest selects features with a query expression.
type FilterRequest struct {
	Expression string `json:"expression"`
	Mission    bool   `json:"mission,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// TouchingRequest selects features intersecting a polygon.
type TouchingRequest struct {
	Geometry *geojson.Geometry `json:"geometry"`
}

type LoadMissionRequest struct {
	Token string `json:"token,omitempty"`
}

type ActiveMissionRequest struct {
	GUID string `json:"guid"`
}

// ArchiveListing is the local archive cache contents.
type ArchiveListing struct {
	Features      List[Feature]            `json:"features"`
	Subscriptions List[SubscriptionRecord] `json:"subscriptions"`
}
