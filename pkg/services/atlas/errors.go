package atlas

import "errors"

var (
	ErrMissionNotLoaded = errors.New("mission subscription not loaded")
	ErrProfileNotLoaded = errors.New("profile not loaded")
	ErrNotFound         = errors.New("feature not found")
	ErrDestroyed        = errors.New("atlas destroyed")
	ErrNoMissionGUID    = errors.New("mission change has no mission guid")
	ErrInvalidFilter    = errors.New("invalid filter expression")
)
