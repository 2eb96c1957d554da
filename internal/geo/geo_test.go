package geo

import (
	"math"
	"testing"

	"cabpool/internal/domain"
)

func TestDistanceMeters_IdenticalPointsIsZero(t *testing.T) {
	p := domain.Coordinate{Lng: 77.209, Lat: 28.6139}
	if d := DistanceMeters(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	points := []domain.Coordinate{
		{Lng: 77.209, Lat: 28.6139},
		{Lng: 72.8777, Lat: 19.076},
		{Lng: -0.1276, Lat: 51.5072},
		{Lng: 151.2093, Lat: -33.8688},
		{Lng: 179.9, Lat: 0},
		{Lng: -179.9, Lat: 0},
	}
	for _, a := range points {
		for _, b := range points {
			if DistanceMeters(a, b) != DistanceMeters(b, a) {
				t.Errorf("distance not symmetric for %v, %v", a, b)
			}
		}
	}
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name    string
		a, b    domain.Coordinate
		want    float64
		epsilon float64
	}{
		{
			name:    "one degree of latitude",
			a:       domain.Coordinate{Lng: 0, Lat: 0},
			b:       domain.Coordinate{Lng: 0, Lat: 1},
			want:    111195,
			epsilon: 1,
		},
		{
			name:    "delhi to mumbai",
			a:       domain.Coordinate{Lng: 77.209, Lat: 28.6139},
			b:       domain.Coordinate{Lng: 72.8777, Lat: 19.076},
			want:    1148095,
			epsilon: 10,
		},
		{
			name:    "across the antimeridian",
			a:       domain.Coordinate{Lng: 179.5, Lat: 0},
			b:       domain.Coordinate{Lng: -179.5, Lat: 0},
			want:    111195,
			epsilon: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.epsilon {
				t.Errorf("expected ~%.0f, got %.0f", tt.want, got)
			}
		})
	}
}

func TestDistanceMeters_NaNPassesThrough(t *testing.T) {
	d := DistanceMeters(domain.Coordinate{Lng: math.NaN(), Lat: 0}, domain.Coordinate{})
	if !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %f", d)
	}
}
