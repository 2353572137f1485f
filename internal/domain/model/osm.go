package model

import "github.com/twpayne/go-geom"

// OSMElement is a node, way or relation returned by the Overpass backend.
// Coords are lon/lat pairs; nodes carry a single coordinate and relations
// none.
type OSMElement struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type"`
	Tags   map[string]string `json:"tags"`
	Coords []geom.Coord      `json:"coords"`
}

// Closed reports whether the way ends where it starts.
func (e OSMElement) Closed() bool {
	n := len(e.Coords)
	return n > 3 && e.Coords[0][0] == e.Coords[n-1][0] && e.Coords[0][1] == e.Coords[n-1][1]
}

// LengthMeters returns the geodesic length of a way, zero for nodes.
func (e OSMElement) LengthMeters() float64 {
	return LineLengthKm(e.Coords) * 1000
}

// AreaSquareMeters returns the enclosed area of a closed way.
func (e OSMElement) AreaSquareMeters() float64 {
	if !e.Closed() {
		return 0
	}
	return RingAreaSqKm(e.Coords) * 1e6
}

// Centroid is the mean of the element's coordinates.
func (e OSMElement) Centroid() (lon, lat float64) {
	if len(e.Coords) == 0 {
		return 0, 0
	}
	for _, c := range e.Coords {
		lon += c[0]
		lat += c[1]
	}
	n := float64(len(e.Coords))
	return lon / n, lat / n
}
