package service

import "cabpool/internal/domain"

var (
	// ErrMissingPickup is returned when a query or request has no pickup location.
	ErrMissingPickup = domain.NewError(domain.KindValidation, "pickup location is required")

	// ErrMissingDrop is returned when a query or request has no drop location.
	ErrMissingDrop = domain.NewError(domain.KindValidation, "drop location is required")

	// ErrMissingDateTime is returned when dateTime is absent.
	ErrMissingDateTime = domain.NewError(domain.KindValidation, "dateTime is required")

	// ErrInvalidCoordinates is returned when coordinates are not a finite [lng, lat] pair in range.
	ErrInvalidCoordinates = domain.NewError(domain.KindValidation, "coordinates must be [lng, lat] within range")

	// ErrInvalidGender is returned for an unknown gender preference.
	ErrInvalidGender = domain.NewError(domain.KindValidation, "preferredGender must be Male, Female or Any")

	// ErrInvalidSeatsNeeded is returned when seatsNeeded is outside 1-4.
	ErrInvalidSeatsNeeded = domain.NewError(domain.KindValidation, "seatsNeeded must be between 1 and 4")

	// ErrInvalidMode is returned for an unknown pool mode.
	ErrInvalidMode = domain.NewError(domain.KindValidation, "mode must be Instant or Scheduled")

	// ErrInvalidSeatCount is returned when seatCount is outside 2-4.
	ErrInvalidSeatCount = domain.NewError(domain.KindValidation, "seatCount must be between 2 and 4")

	// ErrMissingGroupName is returned when a group has no name.
	ErrMissingGroupName = domain.NewError(domain.KindValidation, "groupName is required")

	// ErrInvalidUserID is returned when the acting user id is empty.
	ErrInvalidUserID = domain.NewError(domain.KindValidation, "invalid user id")

	// ErrInvalidStatus is returned for an unknown pool status.
	ErrInvalidStatus = domain.NewError(domain.KindValidation, "invalid status")

	// ErrNotRequestOwner is returned when someone other than the creator or an admin deletes a request.
	ErrNotRequestOwner = domain.NewError(domain.KindAuthorization, "only the creator or an admin can do this")

	// ErrPoolRequestNotOpen is returned when changing the status of a request that already left Open.
	ErrPoolRequestNotOpen = domain.ErrPoolRequestNotOpen
)

func validatePlace(p domain.Place, missing error) error {
	if p.Coord == (domain.Coordinate{}) {
		return missing
	}
	if !p.Coord.Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}
