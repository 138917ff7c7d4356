package atlas

import (
	"fmt"
	"time"
)

// StalePolicy decides when a stale, non-archived entity leaves the view.
type StalePolicy struct {
	Name  string
	Grace time.Duration
	Never bool
}

// Expired reports whether an entity with the given stale time must be removed.
func (p StalePolicy) Expired(now, stale time.Time) bool {
	if p.Never {
		return false
	}
	return now.After(stale.Add(p.Grace))
}

// StalePolicies is the configurable enumeration of display-stale options.
type StalePolicies map[string]StalePolicy

func DefaultStalePolicies() StalePolicies {
	return StalePolicies{
		"Immediate":  {Name: "Immediate"},
		"10 Minutes": {Name: "10 Minutes", Grace: 10 * time.Minute},
		"30 Minutes": {Name: "30 Minutes", Grace: 30 * time.Minute},
		"1 Hour":     {Name: "1 Hour", Grace: time.Hour},
		"Never":      {Name: "Never", Never: true},
	}
}

// Lookup returns the named policy.
func (p StalePolicies) Lookup(name string) (StalePolicy, error) {
	policy, ok := p[name]
	if !ok {
		return StalePolicy{}, fmt.Errorf("unknown stale policy %q", name)
	}
	return policy, nil
}
