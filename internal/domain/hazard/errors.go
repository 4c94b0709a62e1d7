package hazard

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrMissingLocation      = errors.New("missing location")
	ErrInvalidCoordinate    = errors.New("invalid coordinate")
	ErrCacheUnavailable     = errors.New("cache unavailable")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")
	ErrDispatchOverflow     = errors.New("dispatch queue overflow")
)
