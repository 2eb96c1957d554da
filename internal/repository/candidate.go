package repository

import (
	"time"

	"cabpool/internal/domain"
)

// CandidateQuery selects open candidates for a match search. Implementations
// return candidates in discovery order (nearest pickup first); ranking relies
// on that order for ties.
type CandidateQuery struct {
	Near          domain.Coordinate
	RadiusKm      float64
	From          time.Time
	To            time.Time
	ExcludeUserID string

	// Gender filters pool requests by preference compatibility. Ignored for groups.
	Gender domain.GenderPreference
}

// Window returns the time window centered on t.
func Window(t time.Time, half time.Duration) (time.Time, time.Time) {
	return t.Add(-half), t.Add(half)
}
