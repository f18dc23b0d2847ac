package geojson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectionEmpty(t *testing.T) {
	fc := NewCollection(nil)
	out, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(out))
}

func TestFeatureNullGeometry(t *testing.T) {
	f := NewFeature(nil, FlowlineProperties{
		Identifier: "1234",
		Source:     "comid",
		SourceName: "NHDPlus comid",
		Comid:      "13294366",
	})
	out, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Feature", decoded["type"])
	assert.Nil(t, decoded["geometry"])

	props, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "13294366", props["comid"])
	assert.Nil(t, props["mainstem"])
}

func TestFeaturePropertiesNullAnnotations(t *testing.T) {
	measure := 16.633304437714568
	uri := "https://geoconnex.us/ref/mainstems/323742"
	props := FeatureProperties{
		Identifier: "USGS-05427930",
		Name:       "PHEASANT BRANCH AT MIDDLETON, WI",
		Source:     "wqp",
		SourceName: "Water Quality Portal",
		Comid:      "13294332",
		Measure:    &measure,
		Mainstem:   &uri,
	}
	out, err := json.Marshal(props)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, measure, decoded["measure"])
	assert.Equal(t, uri, decoded["mainstem"])

	// Unset pointers must render as explicit nulls, not be omitted.
	out, err = json.Marshal(FeatureProperties{Identifier: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"measure":null`)
	assert.Contains(t, string(out), `"mainstem":null`)
}

func TestLinkedDocument(t *testing.T) {
	fc := NewCollection(nil)
	out, err := json.Marshal(LinkedDocument{Body: fc})
	require.NoError(t, err)
	assert.JSONEq(t, `{"@context":"`+DocumentContext+`","type":"FeatureCollection","features":[]}`, string(out))

	// An empty object still gets the context without a trailing comma.
	out, err = json.Marshal(LinkedDocument{Body: struct{}{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"@context":"`+DocumentContext+`"}`, string(out))
}

func TestPoint(t *testing.T) {
	raw := Point(-89.509, 43.087)
	var decoded struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Point", decoded.Type)
	assert.Equal(t, []float64{-89.509, 43.087}, decoded.Coordinates)
}

func TestGeometryPassthrough(t *testing.T) {
	geom := json.RawMessage(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`)
	f := NewFeature(geom, nil)
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"coordinates":[[0,0],[1,1]]`)
}
