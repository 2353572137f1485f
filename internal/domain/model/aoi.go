package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature is one polygonal feature of an AOI.
type Feature struct {
	ID         string
	Geometry   geom.T
	Properties map[string]any
}

// AOI is the area of interest an indicator is computed for. Coordinates are
// WGS84 (EPSG:4326) longitude/latitude.
type AOI struct {
	Features []*Feature
}

// NewAOI validates the features and wraps them into an AOI.
func NewAOI(features ...*Feature) (*AOI, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidAOI)
	}
	for i, f := range features {
		if f == nil {
			return nil, fmt.Errorf("%w: feature %d is nil", ErrInvalidAOI, i)
		}
		if err := validateGeometry(f.Geometry); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
	}
	return &AOI{Features: features}, nil
}

// ParseAOI decodes a GeoJSON FeatureCollection, Feature, Polygon or
// MultiPolygon. A JSON string holding GeoJSON is accepted as well.
func ParseAOI(data []byte) (*AOI, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		data = []byte(s)
	}

	var head struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
	}

	switch head.Type {
	case "FeatureCollection":
		features := make([]*Feature, 0, len(head.Features))
		for i, raw := range head.Features {
			f, err := parseFeature(raw)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			features = append(features, f)
		}
		return NewAOI(features...)
	case "Feature":
		f, err := parseFeature(data)
		if err != nil {
			return nil, err
		}
		return NewAOI(f)
	case "Polygon", "MultiPolygon":
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		return NewAOI(&Feature{Geometry: g})
	default:
		return nil, fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidAOI, head.Type)
	}
}

func parseFeature(data []byte) (*Feature, error) {
	var raw struct {
		Type       string          `json:"type"`
		ID         json.RawMessage `json:"id"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties map[string]any  `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
	}
	if raw.Type != "Feature" {
		return nil, fmt.Errorf("%w: expected Feature, got %q", ErrInvalidAOI, raw.Type)
	}
	if len(raw.Geometry) == 0 || string(raw.Geometry) == "null" {
		return nil, fmt.Errorf("%w: feature without geometry", ErrInvalidAOI)
	}
	var g geom.T
	if err := geojson.Unmarshal(raw.Geometry, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
	}
	return &Feature{
		ID:         featureID(raw.ID),
		Geometry:   g,
		Properties: raw.Properties,
	}, nil
}

// featureID accepts both string and numeric GeoJSON ids.
func featureID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func validateGeometry(g geom.T) error {
	if g == nil {
		return fmt.Errorf("%w: missing geometry", ErrInvalidAOI)
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		return fmt.Errorf("%w: geometry must be Polygon or MultiPolygon, got %T", ErrInvalidAOI, g)
	}
	if len(g.FlatCoords()) == 0 {
		return fmt.Errorf("%w: empty geometry", ErrInvalidAOI)
	}
	b := g.Bounds()
	if b.Min(0) < -180 || b.Max(0) > 180 || b.Min(1) < -90 || b.Max(1) > 90 {
		return fmt.Errorf("%w: coordinates outside EPSG:4326 range", ErrInvalidAOI)
	}
	return nil
}

// Len returns the number of features.
func (a *AOI) Len() int {
	return len(a.Features)
}

// FeatureAOI returns a single feature AOI for feature i.
func (a *AOI) FeatureAOI(i int) *AOI {
	return &AOI{Features: []*Feature{a.Features[i]}}
}

// Bounds returns the bounding box of all features.
func (a *AOI) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range a.Features {
		b.Extend(f.Geometry)
	}
	return b
}

// AreaSqKm returns the summed geodesic area of all features.
func (a *AOI) AreaSqKm() float64 {
	var total float64
	for _, f := range a.Features {
		total += GeometryAreaSqKm(f.Geometry)
	}
	return total
}

// Within reports whether the AOI bounding box lies inside the given box.
func (a *AOI) Within(minLon, minLat, maxLon, maxLat float64) bool {
	b := a.Bounds()
	return b.Min(0) >= minLon && b.Min(1) >= minLat && b.Max(0) <= maxLon && b.Max(1) <= maxLat
}

type featureJSON struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// GeoJSONFeature encodes feature i with the given properties replacing its own
// when props is not nil.
func (a *AOI) GeoJSONFeature(i int, props map[string]any) ([]byte, error) {
	f := a.Features[i]
	geometry, err := geojson.Marshal(f.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	if props == nil {
		props = f.Properties
	}
	return json.Marshal(featureJSON{Type: "Feature", ID: f.ID, Geometry: geometry, Properties: props})
}

// MarshalJSON encodes the AOI as a GeoJSON FeatureCollection.
func (a *AOI) MarshalJSON() ([]byte, error) {
	features := make([]json.RawMessage, 0, len(a.Features))
	for i := range a.Features {
		raw, err := a.GeoJSONFeature(i, nil)
		if err != nil {
			return nil, err
		}
		features = append(features, raw)
	}
	return json.Marshal(struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}{Type: "FeatureCollection", Features: features})
}

func (a *AOI) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAOI(data)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}
