package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internetofwater/nldi-go/internal/geojson"
)

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Type       string         `json:"type"`
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
	Meta *struct {
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
		Total  int64  `json:"total"`
		Self   string `json:"self"`
		Next   string `json:"next"`
	} `json:"meta"`
}

func decodeCollection(t *testing.T, body []byte) featureCollection {
	t.Helper()
	var fc featureCollection
	require.NoError(t, json.Unmarshal(body, &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	return fc
}

func TestGetFlowlineByComid(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/13297198")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.Equal(t, "13297198", props["comid"])
	assert.Equal(t, "comid", props["source"])
	assert.Equal(t, "LineString", fc.Features[0].Geometry["type"])
}

func TestGetFlowlineByComidNotFound(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/99999999999")
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "NotFound", body["code"])
}

func TestComidPosition(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/position?coords="+url.QueryEscape("POINT(-89.509 43.087)"))
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "13297198", fc.Features[0].Properties["comid"])
	assert.Equal(t, "Polygon", fc.Features[0].Geometry["type"])
}

func TestComidPositionBadCoords(t *testing.T) {
	s := newTestServer(t)
	for _, coords := range []string{
		"POINT(43.087)",
		"POINT(-189.5 43.087)",
		"POINT(-89.5 443.087)",
		"LINESTRING(-89.5 43, -89.6 43)",
		"not wkt at all",
	} {
		w := doGet(t, s, "/api/nldi/linked-data/comid/position?coords="+url.QueryEscape(coords))
		require.Equal(t, http.StatusBadRequest, w.Code, coords)
		assert.Equal(t, "InvalidInput", decodeBody(t, w)["code"], coords)
	}
}

func TestNavigationFlowlines(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=10")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.NotEmpty(t, fc.Features)

	seen := map[string]bool{}
	for _, f := range fc.Features {
		comid, ok := f.Properties["nhdplus_comid"].(string)
		require.True(t, ok, "expected nhdplus_comid on every navigated flowline")
		assert.False(t, seen[comid], "duplicate comid %s", comid)
		seen[comid] = true
	}
}

func TestNavigationFlowlinesExcludeGeometry(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=10&excludeGeometry=true")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.NotEmpty(t, fc.Features)
	for _, f := range fc.Features {
		assert.Nil(t, f.Geometry)
		assert.NotEmpty(t, f.Properties["nhdplus_comid"])
	}
	assert.NotContains(t, w.Body.String(), "coordinates")

	w = doGet(t, s, "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=10&excludeGeometry=nope")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNavigationFeatures(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500/navigation/UT/huc12pp?distance=50")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.NotEmpty(t, fc.Features)
	for _, f := range fc.Features {
		assert.Equal(t, "huc12pp", f.Properties["source"])
		assert.NotEmpty(t, f.Properties["comid"])
	}
}

func TestNavigationEmptyIsOK(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/huc12pp/070900020703/navigation/UM/flowlines?distance=10")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	assert.Empty(t, fc.Features)
	assert.Contains(t, w.Body.String(), `"features":[]`)
}

func TestNavigationValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		path string
	}{
		{"pp without stopComid", "/api/nldi/linked-data/comid/13297198/navigation/PP/flowlines?distance=10"},
		{"missing distance", "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines"},
		{"zero distance", "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=0"},
		{"excessive distance", "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=10000"},
		{"bad distance", "/api/nldi/linked-data/comid/13297198/navigation/UM/flowlines?distance=ten"},
		{"unknown mode", "/api/nldi/linked-data/comid/13297198/navigation/XX/flowlines?distance=10"},
		{"stopComid with UT", "/api/nldi/linked-data/comid/13297198/navigation/UT/flowlines?distance=10&stopComid=123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doGet(t, s, tc.path)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "InvalidInput", decodeBody(t, w)["code"])
		})
	}
}

func TestNavigationUnknownDataSource(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/comid/13297198/navigation/UM/nosuch?distance=10")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNavigationModesIndex(t *testing.T) {
	s := newTestServer(t)

	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500/navigation")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "upstreamMain")
	assert.Contains(t, body, "downstreamDiversions")
	assert.NotContains(t, body, "pointToPoint")

	w = doGet(t, s, "/api/nldi/linked-data/comid/13297198/navigation")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w), "pointToPoint")
}

func TestNavigationDataSourceIndex(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500/navigation/UT")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "Flowlines", entries[0]["source"])
	assert.Contains(t, entries[0]["features"], "/navigation/UT/flowlines")
}

func TestListSources(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "comid", entries[0]["source"])
	assert.Equal(t, "NHDPlus comid", entries[0]["sourceName"])
	assert.Equal(t, "nwissite", entries[1]["source"])
}

func TestGetFeature(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.Equal(t, "USGS-05428500", props["identifier"])
	assert.Equal(t, "13297198", props["comid"])
	assert.Equal(t, "https://geoconnex.us/ref/mainstems/323742", props["mainstem"])
	assert.Contains(t, props["navigation"], "/linked-data/nwissite/USGS-05428500/navigation")
}

func TestGetFeatureMissingMainstemIsNull(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/huc12pp/070900020703")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	mainstem, present := fc.Features[0].Properties["mainstem"]
	assert.True(t, present)
	assert.Nil(t, mainstem)
}

func TestGetFeatureUnknownSource(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nosuch/id-1")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFeaturesPaging(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.NotNil(t, fc.Meta)
	assert.Equal(t, 1, fc.Meta.Limit)
	assert.Equal(t, int64(1), fc.Meta.Total)
	assert.Contains(t, fc.Meta.Self, "limit=1")
}

func TestListFeaturesPagingValidation(t *testing.T) {
	s := newTestServer(t)
	for _, query := range []string{"limit=0", "limit=10001", "limit=abc", "offset=-1"} {
		w := doGet(t, s, "/api/nldi/linked-data/nwissite?"+query)
		require.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestHydrolocation(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/hydrolocation?coords="+url.QueryEscape("POINT(-89.509 43.087)"))
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 2)

	indexed := fc.Features[0].Properties
	assert.Equal(t, "indexed", indexed["source"])
	assert.Equal(t, "13297198", indexed["comid"])
	assert.InDelta(t, 40.2, indexed["measure"].(float64), 1e-9)

	provided := fc.Features[1].Properties
	assert.Equal(t, "provided", provided["source"])
	assert.Equal(t, "Provided via API call", provided["sourceName"])
}

func TestHydrolocationRemoteTimeout(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Remote = stubRemote{fail: true} })
	w := doGet(t, s, "/api/nldi/linked-data/hydrolocation?coords="+url.QueryEscape("POINT(-89.509 43.087)"))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "RemoteTimeout", decodeBody(t, w)["code"])
}

func TestBasin(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500/basin")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "MultiPolygon", fc.Features[0].Geometry["type"])
}

func TestBasinSplitCatchment(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500/basin?splitCatchment=true")
	require.Equal(t, http.StatusOK, w.Code)

	fc := decodeCollection(t, w.Body.Bytes())
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry["type"])
}

func TestOpenAPIFormats(t *testing.T) {
	s := newTestServer(t)

	w := doGet(t, s, "/api/nldi/openapi")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "openapi+json")

	w = doGet(t, s, "/api/nldi/openapi?f=yaml")
	require.Equal(t, http.StatusOK, w.Code)

	w = doGet(t, s, "/api/nldi/openapi?f=html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	w = doGet(t, s, "/api/nldi/openapi?f=csv")
	require.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestUnsupportedFormatRejected(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data?f=xml")
	require.Equal(t, http.StatusNotAcceptable, w.Code)
	assert.Equal(t, "NotAcceptable", decodeBody(t, w)["code"])
}

func TestFeatureJSONLD(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/linked-data/nwissite/USGS-05428500?f=jsonld")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/ld+json")

	body := decodeBody(t, w)
	assert.Equal(t, geojson.DocumentContext, body["@context"])
	assert.Equal(t, "FeatureCollection", body["type"])

	// Source listings are plain JSON only.
	w = doGet(t, s, "/api/nldi/linked-data?f=jsonld")
	require.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestAcceptNegotiation(t *testing.T) {
	s := newTestServer(t)

	w := doGetAccept(t, s, "/api/nldi/linked-data/comid/13297198", "application/vnd.geo+json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/vnd.geo+json")

	w = doGetAccept(t, s, "/api/nldi/linked-data/comid/13297198", "text/html")
	require.Equal(t, http.StatusNotAcceptable, w.Code)

	// A wildcard alternative keeps the request acceptable.
	w = doGetAccept(t, s, "/api/nldi/linked-data/comid/13297198", "text/html, */*;q=0.1")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/about/info")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestLookupsRedirect(t *testing.T) {
	s := newTestServer(t)
	w := doGet(t, s, "/api/nldi/lookups")
	require.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/linked-data")
}
