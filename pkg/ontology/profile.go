package ontology

import "github.com/paulmach/orb/geojson"

// ProfileRecord is the server-side user profile.
type ProfileRecord struct {
	Username     string            `json:"username"`
	TakCallsign  string            `json:"tak_callsign"`
	TakRemarks   string            `json:"tak_remarks"`
	TakGroup     string            `json:"tak_group"`
	TakRole      string            `json:"tak_role"`
	TakType      string            `json:"tak_type,omitempty"`
	TakLoc       *geojson.Geometry `json:"tak_loc,omitempty"`
	TakLocFreq   int               `json:"tak_loc_freq,omitempty"`
	DisplayStale string            `json:"display_stale,omitempty"`
}

// ProfileUpdate is a partial profile patch. Nil fields are left untouched.
type ProfileUpdate struct {
	TakCallsign *string `json:"tak_callsign,omitempty"`
	TakRemarks  *string `json:"tak_remarks,omitempty"`
}
