package model

import (
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKm is the mean earth radius used for all geodesic measures.
const EarthRadiusKm = 6371.0088

// DistanceKm returns the great circle distance between two WGS84 points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// LineLengthKm sums the great circle length of a lon/lat coordinate sequence.
func LineLengthKm(coords []geom.Coord) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += DistanceKm(coords[i-1][1], coords[i-1][0], coords[i][1], coords[i][0])
	}
	return total
}

// RingAreaSqKm returns the geodesic area enclosed by a lon/lat ring. The ring
// may be open or closed and in either orientation.
func RingAreaSqKm(coords []geom.Coord) float64 {
	n := len(coords)
	if n > 1 && coords[0][0] == coords[n-1][0] && coords[0][1] == coords[n-1][1] {
		n--
	}
	if n < 3 {
		return 0
	}
	points := make([]s2.Point, 0, n)
	for _, c := range coords[:n] {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(c[1], c[0])))
	}
	loop := s2.LoopFromPoints(points)
	loop.Normalize()
	return loop.Area() * EarthRadiusKm * EarthRadiusKm
}

// GeometryAreaSqKm returns the geodesic area of a Polygon or MultiPolygon,
// holes excluded. Other geometry types have no area.
func GeometryAreaSqKm(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonAreaSqKm(t)
	case *geom.MultiPolygon:
		var total float64
		for i := 0; i < t.NumPolygons(); i++ {
			total += polygonAreaSqKm(t.Polygon(i))
		}
		return total
	default:
		return 0
	}
}

func polygonAreaSqKm(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return 0
	}
	area := RingAreaSqKm(p.LinearRing(0).Coords())
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= RingAreaSqKm(p.LinearRing(i).Coords())
	}
	if area < 0 {
		return 0
	}
	return area
}
