package geo

import "math"

// BoundingBox is the coarse rectangle used to pre-filter candidates before
// exact distances are computed. Longitude bounds may lie outside
// [-180, 180] when the box crosses the antimeridian; use LongitudeRanges to
// get query-ready intervals.
type BoundingBox struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
	// AllLongitudes is set when the box touches a pole, where a longitude
	// window stops being meaningful.
	AllLongitudes bool
}

// BoundingBoxMiles builds a box of ±miles/69 degrees latitude and
// ±miles/(69·cos(lat)) degrees longitude around center.
func BoundingBoxMiles(center Point, miles float64) BoundingBox {
	latDelta := miles / MilesPerDegreeLatitude
	box := BoundingBox{
		MinLatitude: math.Max(center.Latitude-latDelta, -90),
		MaxLatitude: math.Min(center.Latitude+latDelta, 90),
	}

	cosLat := math.Cos(toRadians(center.Latitude))
	if box.MinLatitude <= -90 || box.MaxLatitude >= 90 || cosLat <= 1e-9 {
		box.AllLongitudes = true
		box.MinLongitude, box.MaxLongitude = -180, 180
		return box
	}

	lngDelta := miles / (MilesPerDegreeLatitude * cosLat)
	if lngDelta >= 180 {
		box.AllLongitudes = true
		box.MinLongitude, box.MaxLongitude = -180, 180
		return box
	}
	box.MinLongitude = center.Longitude - lngDelta
	box.MaxLongitude = center.Longitude + lngDelta
	return box
}

// LongitudeRanges splits the longitude window into at most two intervals
// inside [-180, 180].
func (b BoundingBox) LongitudeRanges() [][2]float64 {
	switch {
	case b.AllLongitudes:
		return [][2]float64{{-180, 180}}
	case b.MinLongitude < -180:
		return [][2]float64{{b.MinLongitude + 360, 180}, {-180, b.MaxLongitude}}
	case b.MaxLongitude > 180:
		return [][2]float64{{b.MinLongitude, 180}, {-180, b.MaxLongitude - 360}}
	default:
		return [][2]float64{{b.MinLongitude, b.MaxLongitude}}
	}
}

func (b BoundingBox) Contains(p Point) bool {
	if p.Latitude < b.MinLatitude || p.Latitude > b.MaxLatitude {
		return false
	}
	for _, r := range b.LongitudeRanges() {
		if p.Longitude >= r[0] && p.Longitude <= r[1] {
			return true
		}
	}
	return false
}
