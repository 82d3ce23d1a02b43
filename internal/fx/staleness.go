package fx

import "time"

// Classification grades the age of the most recent ingested rate.
type Classification string

const (
	ClassFresh      Classification = "FRESH"
	ClassWarning    Classification = "WARNING"
	ClassAcceptable Classification = "ACCEPTABLE"
	ClassStale      Classification = "STALE"
)

// StalenessConfig holds the age bounds between classifications. The bounds
// are injected from configuration, never read from a global.
type StalenessConfig struct {
	FreshWithin      time.Duration
	WarningWithin    time.Duration
	AcceptableWithin time.Duration
}

// DefaultStalenessConfig returns the standard 60/240/1440 minute bands.
func DefaultStalenessConfig() StalenessConfig {
	return StalenessConfig{
		FreshWithin:      60 * time.Minute,
		WarningWithin:    240 * time.Minute,
		AcceptableWithin: 1440 * time.Minute,
	}
}

// Classify grades a rate age against the configured bounds.
func (c StalenessConfig) Classify(age time.Duration) Classification {
	switch {
	case age <= c.FreshWithin:
		return ClassFresh
	case age <= c.WarningWithin:
		return ClassWarning
	case age <= c.AcceptableWithin:
		return ClassAcceptable
	default:
		return ClassStale
	}
}

// RequiresReview reports whether a posting using a rate of this
// classification must be tagged for downstream audit review.
func (cl Classification) RequiresReview() bool {
	return cl == ClassStale
}
