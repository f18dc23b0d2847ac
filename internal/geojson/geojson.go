// Package geojson defines the GeoJSON wire types returned by the service.
// Geometry is carried opaquely as json.RawMessage: PostGIS produces it with
// ST_AsGeoJSON and nothing in the service needs to look inside it.
package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Feature is a single GeoJSON feature. A nil Geometry marshals as null.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties any             `json:"properties"`
}

// FeatureCollection is the response envelope for every feature endpoint.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeature builds a feature with the conventional type tag.
func NewFeature(geometry json.RawMessage, properties any) Feature {
	return Feature{Type: "Feature", Geometry: geometry, Properties: properties}
}

// NewCollection wraps features in a FeatureCollection. A nil slice becomes
// an empty array so an empty result still serializes as valid GeoJSON.
func NewCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// DocumentContext is the GeoJSON-LD context attached to jsonld responses.
const DocumentContext = "https://geojson.org/geojson-ld/geojson-context.jsonld"

// LinkedDocument wraps a GeoJSON body so it marshals with an @context
// member prepended, turning the document into GeoJSON-LD.
type LinkedDocument struct {
	Body any
}

func (d LinkedDocument) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(d.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2 || raw[0] != '{' {
		return raw, nil
	}
	prefix := []byte(`{"@context":"` + DocumentContext + `"`)
	if raw[1] != '}' {
		prefix = append(prefix, ',')
	}
	return append(prefix, raw[1:]...), nil
}

// Point builds a GeoJSON point geometry for the given coordinates.
func Point(lon, lat float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"Point","coordinates":[%s,%s]}`,
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64)))
}

// FeatureProperties is the property block of an indexed feature. Comid is
// serialized as a string; a missing mainstem renders as null.
type FeatureProperties struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Source     string   `json:"source"`
	SourceName string   `json:"sourceName"`
	Comid      string   `json:"comid"`
	Type       string   `json:"type"`
	URI        string   `json:"uri"`
	Reachcode  string   `json:"reachcode"`
	Measure    *float64 `json:"measure"`
	Navigation string   `json:"navigation"`
	Mainstem   *string  `json:"mainstem"`
}

// FlowlineProperties is the property block of an NHDPlus flowline.
type FlowlineProperties struct {
	Identifier string  `json:"identifier"`
	Source     string  `json:"source"`
	SourceName string  `json:"sourceName"`
	Comid      string  `json:"comid"`
	Mainstem   *string `json:"mainstem"`
	Navigation string  `json:"navigation"`
}

// HydroLocationProperties is the property block of hydrolocation points,
// both the indexed point and the echo of the caller's point.
type HydroLocationProperties struct {
	Identifier string   `json:"identifier"`
	Navigation string   `json:"navigation"`
	Measure    *float64 `json:"measure"`
	Reachcode  string   `json:"reachcode"`
	Name       string   `json:"name"`
	Source     string   `json:"source"`
	SourceName string   `json:"sourceName"`
	Comid      string   `json:"comid"`
	Type       string   `json:"type"`
	URI        string   `json:"uri"`
}
