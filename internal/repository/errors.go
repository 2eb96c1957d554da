package repository

import "cabpool/internal/domain"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = domain.NewError(domain.KindNotFound, "entity not found")

	// ErrVersionConflict is returned when a conditional write loses against a
	// concurrent writer.
	ErrVersionConflict = domain.NewError(domain.KindConflict, "group was modified concurrently")
)
