package domain

import "math"

// Coordinate is a point on the earth. Longitude always comes first on the
// wire ([lng, lat]) and in Redis GEO calls; keep the named fields to avoid
// transposing them.
type Coordinate struct {
	Lng float64
	Lat float64
}

// Valid reports whether the coordinate is finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Place is an address with its coordinate.
type Place struct {
	Address string
	Coord   Coordinate
}

// Route is the pickup and drop of a shared ride.
type Route struct {
	Pickup Place
	Drop   Place
}
