package storage

import (
	"math"

	"github.com/chihacknight/chn-ghost-buses/model"
)

const earthRadiusKm = 6371

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Great circle distance in km between two points.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	aLatRad, bLatRad := radians(aLat), radians(bLat)
	sinLat := math.Sin((aLatRad - bLatRad) / 2)
	sinLon := math.Sin(radians(aLon-bLon) / 2)

	h := sinLat*sinLat + math.Cos(aLatRad)*math.Cos(bLatRad)*sinLon*sinLon

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Length in km of a shape, with points in sequence order.
func PolylineLength(points []*model.ShapePoint) float64 {
	length := 0.0
	for i := 1; i < len(points); i++ {
		length += HaversineDistance(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return length
}
