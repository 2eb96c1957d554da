package domain

import "time"

// GenderPreference restricts who a commuter is willing to ride with.
type GenderPreference string

const (
	PreferMale   GenderPreference = "Male"
	PreferFemale GenderPreference = "Female"
	PreferAny    GenderPreference = "Any"
)

// Valid reports whether p is a known preference. The empty value is not valid;
// callers default it to PreferAny.
func (p GenderPreference) Valid() bool {
	switch p {
	case PreferMale, PreferFemale, PreferAny:
		return true
	}
	return false
}

// CompatibleWith reports whether a candidate holding preference p may be
// offered to a searcher asking for want. An unset or Any preference on either
// side is compatible with everything.
func (p GenderPreference) CompatibleWith(want GenderPreference) bool {
	if p == "" || p == PreferAny || want == "" || want == PreferAny {
		return true
	}
	return p == want
}

// PoolMode says whether a request is for now or later.
type PoolMode string

const (
	PoolModeInstant   PoolMode = "Instant"
	PoolModeScheduled PoolMode = "Scheduled"
)

// PoolStatus represents the current status of a pool request.
type PoolStatus string

const (
	PoolStatusOpen      PoolStatus = "Open"
	PoolStatusMatched   PoolStatus = "Matched"
	PoolStatusCompleted PoolStatus = "Completed"
	PoolStatusCancelled PoolStatus = "Cancelled"
)

// Valid reports whether s is a known status.
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolStatusOpen, PoolStatusMatched, PoolStatusCompleted, PoolStatusCancelled:
		return true
	}
	return false
}

const (
	MinSeatsNeeded = 1
	MaxSeatsNeeded = 4
)

// PoolRequest is a standalone ride-sharing ask from one user.
type PoolRequest struct {
	ID              string
	CreatorID       string
	Pickup          Place
	Drop            Place
	DateTime        time.Time
	PreferredGender GenderPreference
	SeatsNeeded     int
	Mode            PoolMode
	Status          PoolStatus
	MatchedUserIDs  []string
	GroupID         string // Empty until the request joins a group.
	CreatedAt       time.Time
}
