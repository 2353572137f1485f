package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const squareFeatureCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": 42,
      "properties": {"name": "square"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "id": "b",
      "properties": null,
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[2,2],[3,2],[3,3],[2,3],[2,2]]]]}
    }
  ]
}`

// ============================================================================
// PARSING
// ============================================================================

func TestParseAOI_FeatureCollection(t *testing.T) {
	aoi, err := ParseAOI([]byte(squareFeatureCollection))
	require.NoError(t, err)

	require.Equal(t, 2, aoi.Len())
	assert.Equal(t, "42", aoi.Features[0].ID, "numeric ids are kept as text")
	assert.Equal(t, "b", aoi.Features[1].ID)
	assert.Equal(t, "square", aoi.Features[0].Properties["name"])
	assert.NotNil(t, aoi.Features[1].Properties, "null properties become an empty map")
	assert.IsType(t, &geom.MultiPolygon{}, aoi.Features[1].Geometry)
}

func TestParseAOI_BareGeometryAndFeature(t *testing.T) {
	aoi, err := ParseAOI([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, aoi.Len())

	aoi, err = ParseAOI([]byte(`{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, aoi.Len())
}

func TestParseAOI_StringEncoded(t *testing.T) {
	encoded, err := json.Marshal(squareFeatureCollection)
	require.NoError(t, err)

	aoi, err := ParseAOI(encoded)
	require.NoError(t, err)
	assert.Equal(t, 2, aoi.Len())
}

func TestParseAOI_Rejects(t *testing.T) {
	cases := map[string]string{
		"point":          `{"type":"Point","coordinates":[0,0]}`,
		"line feature":   `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`,
		"no geometry":    `{"type":"Feature","geometry":null}`,
		"empty":          `{"type":"FeatureCollection","features":[]}`,
		"out of range":   `{"type":"Polygon","coordinates":[[[0,0],[200,0],[200,1],[0,0]]]}`,
		"not json":       `{{`,
		"unknown object": `{"type":"Topology"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAOI([]byte(input))
			assert.ErrorIs(t, err, ErrInvalidAOI)
		})
	}
}

// ============================================================================
// GEOMETRY HELPERS
// ============================================================================

func TestAOI_BoundsAndArea(t *testing.T) {
	aoi, err := ParseAOI([]byte(squareFeatureCollection))
	require.NoError(t, err)

	b := aoi.Bounds()
	assert.Equal(t, 0.0, b.Min(0))
	assert.Equal(t, 0.0, b.Min(1))
	assert.Equal(t, 3.0, b.Max(0))
	assert.Equal(t, 3.0, b.Max(1))

	first := aoi.FeatureAOI(0)
	assert.InDelta(t, 12364, first.AreaSqKm(), 10, "one degree cell at the equator")
	assert.Greater(t, aoi.AreaSqKm(), first.AreaSqKm())

	assert.True(t, aoi.Within(-1, -1, 4, 4))
	assert.False(t, aoi.Within(0.5, -1, 4, 4))
}

func TestGeometryAreaSqKm_Hole(t *testing.T) {
	outer := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	})
	holed := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
		{{0.25, 0.25}, {0.75, 0.25}, {0.75, 0.75}, {0.25, 0.75}, {0.25, 0.25}},
	})

	full := GeometryAreaSqKm(outer)
	withHole := GeometryAreaSqKm(holed)
	assert.InDelta(t, full*0.75, withHole, 5)
	assert.Zero(t, GeometryAreaSqKm(geom.NewPoint(geom.XY)))
}

func TestDistanceAndLength(t *testing.T) {
	assert.InDelta(t, 111.195, DistanceKm(0, 0, 1, 0), 0.01)

	coords := []geom.Coord{{0, 0}, {0, 1}, {0, 2}}
	assert.InDelta(t, 222.39, LineLengthKm(coords), 0.02)

	ring := OSMElement{Coords: []geom.Coord{{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}, {0, 0}}}
	assert.True(t, ring.Closed())
	assert.InDelta(t, 12364, ring.AreaSquareMeters(), 20)
}

// ============================================================================
// ENCODING
// ============================================================================

func TestAOI_MarshalRoundTrip(t *testing.T) {
	aoi, err := ParseAOI([]byte(squareFeatureCollection))
	require.NoError(t, err)

	raw, err := json.Marshal(aoi)
	require.NoError(t, err)

	var decoded AOI
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 2, decoded.Len())
	assert.Equal(t, "42", decoded.Features[0].ID)
	assert.InDelta(t, aoi.AreaSqKm(), decoded.AreaSqKm(), 1e-6)
}

func TestAOI_GeoJSONFeatureOverridesProperties(t *testing.T) {
	aoi, err := ParseAOI([]byte(squareFeatureCollection))
	require.NoError(t, err)

	raw, err := aoi.GeoJSONFeature(0, map[string]any{"result.label": "green"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Feature", decoded["type"])
	assert.Equal(t, map[string]any{"result.label": "green"}, decoded["properties"])
}
