// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultPeopleListLimit is the maximum number of people returned by the list endpoint
	DefaultPeopleListLimit = 1000

	// MaxFilterIDs limits explicit person id filters in a recognize request
	MaxFilterIDs = 1000
)

// Status strings returned by the health endpoint
const (
	ExtractorReady    = "ready"
	ExtractorNotReady = "not_ready"
)
