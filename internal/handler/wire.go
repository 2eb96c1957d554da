package handler

import (
	"time"

	"cabpool/internal/domain"
	"cabpool/internal/service"
)

// Location is a place on the wire. Coordinates are [lng, lat].
type Location struct {
	Address     string    `json:"address"`
	Coordinates []float64 `json:"coordinates"`
}

func (l *Location) toPlace(missing error) (domain.Place, error) {
	if l == nil || l.Coordinates == nil {
		return domain.Place{}, missing
	}
	if len(l.Coordinates) != 2 {
		return domain.Place{}, service.ErrInvalidCoordinates
	}
	p := domain.Place{
		Address: l.Address,
		Coord:   domain.Coordinate{Lng: l.Coordinates[0], Lat: l.Coordinates[1]},
	}
	if !p.Coord.Valid() {
		return domain.Place{}, service.ErrInvalidCoordinates
	}
	return p, nil
}

func toLocation(p domain.Place) Location {
	return Location{Address: p.Address, Coordinates: []float64{p.Coord.Lng, p.Coord.Lat}}
}

// MatchRequest is the HTTP request body for POST /pool/match and /group/match.
type MatchRequest struct {
	PickupLocation  *Location `json:"pickupLocation"`
	DropLocation    *Location `json:"dropLocation"`
	DateTime        time.Time `json:"dateTime"`
	PreferredGender string    `json:"preferredGender,omitempty"`
}

func (r MatchRequest) toQuery(requesterID string) (service.MatchQuery, error) {
	pickup, err := r.PickupLocation.toPlace(service.ErrMissingPickup)
	if err != nil {
		return service.MatchQuery{}, err
	}
	drop, err := r.DropLocation.toPlace(service.ErrMissingDrop)
	if err != nil {
		return service.MatchQuery{}, err
	}
	return service.MatchQuery{
		RequesterID:     requesterID,
		Pickup:          pickup,
		Drop:            drop,
		DateTime:        r.DateTime,
		PreferredGender: domain.GenderPreference(r.PreferredGender),
	}, nil
}

// ScoreFields are added to every ranked match entry.
type ScoreFields struct {
	MatchScore      float64 `json:"matchScore"`
	PickupDistance  float64 `json:"pickupDistance"`
	DropDistance    float64 `json:"dropDistance"`
	TimeDiffMinutes float64 `json:"timeDiffMinutes"`
}

func toScoreFields(s service.Score) ScoreFields {
	return ScoreFields{
		MatchScore:      s.MatchScore,
		PickupDistance:  s.PickupDistance,
		DropDistance:    s.DropDistance,
		TimeDiffMinutes: s.TimeDiffMinutes,
	}
}
