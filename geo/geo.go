package geo

import (
	"errors"
	"math"
)

const (
	EarthRadiusMeters      = 6371000.0
	MetersPerMile          = 1609.34
	MilesPerDegreeLatitude = 69.0
)

var errInvalidPoint = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")

func ErrInvalidPoint() error {
	return errInvalidPoint
}

type Point struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		p.Latitude < -90 || p.Latitude > 90 ||
		p.Longitude < -180 || p.Longitude > 180 {
		return errInvalidPoint
	}
	return nil
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula on a sphere of radius EarthRadiusMeters.
func DistanceMeters(a, b Point) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

func WithinRadius(center, p Point, radiusMeters float64) bool {
	return DistanceMeters(center, p) <= radiusMeters
}

func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

func MetersToMiles(meters float64) float64 {
	return meters / MetersPerMile
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
