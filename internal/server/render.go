package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/geojson"
	"github.com/internetofwater/nldi-go/internal/lookup"
)

const (
	defaultLimit = 100
	maxLimit     = 10_000
)

// respond writes v as JSON, honoring the configured pretty printing and
// the GeoJSON and JSON-LD media types when the client asked for them.
func (s *Server) respond(c *gin.Context, status int, v any) {
	if c.Query("f") == "jsonld" {
		c.Header("Content-Type", "application/ld+json")
		v = geojson.LinkedDocument{Body: v}
	} else if want := c.GetHeader("Accept"); strings.Contains(want, "application/vnd.geo+json") {
		c.Header("Content-Type", "application/vnd.geo+json")
	}
	if s.deps.Config.Server.PrettyPrint {
		c.IndentedJSON(status, v)
		return
	}
	c.JSON(status, v)
}

// checkFormat enforces the f query parameter on plain JSON endpoints. An
// explicit f overrides the Accept header.
func (s *Server) checkFormat(c *gin.Context) bool {
	switch c.Query("f") {
	case "json":
		return true
	case "":
		return s.checkAccept(c)
	}
	s.writeError(c, errs.New(errs.NotAcceptable, "unsupported format: %s", c.Query("f")))
	return false
}

// checkFeatureFormat additionally admits jsonld; endpoints that produce
// GeoJSON features can reshape it as GeoJSON-LD.
func (s *Server) checkFeatureFormat(c *gin.Context) bool {
	switch c.Query("f") {
	case "json", "jsonld":
		return true
	case "":
		return s.checkAccept(c)
	}
	s.writeError(c, errs.New(errs.NotAcceptable, "unsupported format: %s", c.Query("f")))
	return false
}

// checkAccept rejects an Accept header that names only media types the
// service cannot produce.
func (s *Server) checkAccept(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case "*/*", "application/*", "application/json",
			"application/vnd.geo+json", "application/geo+json",
			"application/ld+json":
			return true
		}
	}
	s.writeError(c, errs.New(errs.NotAcceptable, "no producible media type in Accept: %s", accept))
	return false
}

// logLegacy records the legacy query parameter; it is accepted for
// compatibility but never acted on.
func (s *Server) logLegacy(c *gin.Context) {
	if v, ok := c.GetQuery("legacy"); ok {
		s.log.Debug("legacy parameter ignored",
			zap.String("value", v),
			zap.String("path", c.Request.URL.Path))
	}
}

func parsePaging(c *gin.Context) (limit, offset int, err error) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, errs.InvalidInputf("limit must be an integer between 1 and %d", maxLimit)
		}
	}
	if v := c.Query("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errs.InvalidInputf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func parseBoolParam(c *gin.Context, name string, fallback bool) (bool, error) {
	v := c.Query(name)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, errs.InvalidInputf("invalid %s parameter: %s", name, v)
	}
	return parsed, nil
}

// URL builders. Everything hangs off the configured public root.

func (s *Server) linkedDataURL(parts ...string) string {
	segments := append([]string{s.deps.Config.RootURL(), "linked-data"}, parts...)
	return strings.Join(segments, "/")
}

func (s *Server) navigationURL(suffix, identifier string) string {
	return s.linkedDataURL(suffix, identifier, "navigation")
}

func comidString(comid *int64) string {
	if comid == nil {
		return ""
	}
	return strconv.FormatInt(*comid, 10)
}

func orEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// featureGeoJSON shapes one indexed feature for the wire.
func (s *Server) featureGeoJSON(f lookup.Feature) geojson.Feature {
	return geojson.NewFeature(f.Geometry, geojson.FeatureProperties{
		Identifier: f.Identifier,
		Name:       orEmpty(f.Name),
		Source:     f.SourceSuffix,
		SourceName: f.SourceName,
		Comid:      comidString(f.Comid),
		Type:       orEmpty(f.FeatureType),
		URI:        orEmpty(f.URI),
		Reachcode:  orEmpty(f.Reachcode),
		Measure:    f.Measure,
		Navigation: s.navigationURL(f.SourceSuffix, f.Identifier),
		Mainstem:   f.MainstemURI,
	})
}

// flowlineGeoJSON shapes one flowline the way the comid lookup endpoints
// report it.
func (s *Server) flowlineGeoJSON(fl lookup.Flowline) geojson.Feature {
	comid := fl.Comid
	return geojson.NewFeature(fl.Geometry, geojson.FlowlineProperties{
		Identifier: orEmpty(fl.PermanentIdentifier),
		Source:     "comid",
		SourceName: "NHDPlus comid",
		Comid:      comidString(&comid),
		Mainstem:   fl.MainstemURI,
		Navigation: s.navigationURL("comid", comidString(&comid)),
	})
}

// navigatedFlowlineProperties is the property block of flowlines reported
// along a navigation walk.
type navigatedFlowlineProperties struct {
	NhdplusComid string `json:"nhdplus_comid"`
}

func navigatedFlowlineGeoJSON(fl lookup.Flowline) geojson.Feature {
	comid := fl.Comid
	return geojson.NewFeature(fl.Geometry, navigatedFlowlineProperties{
		NhdplusComid: comidString(&comid),
	})
}

// pageMeta carries paging links on feature listings.
type pageMeta struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Total  int64  `json:"total"`
	Self   string `json:"self"`
	Prev   string `json:"prev,omitempty"`
	Next   string `json:"next,omitempty"`
}

type pagedCollection struct {
	Type     string            `json:"type"`
	Features []geojson.Feature `json:"features"`
	Meta     pageMeta          `json:"meta"`
}

func (s *Server) pageURL(suffix string, limit, offset int) string {
	return s.linkedDataURL(suffix) + "?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
}

func (s *Server) pageMetaFor(suffix string, limit, offset int, total int64) pageMeta {
	meta := pageMeta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
		Self:   s.pageURL(suffix, limit, offset),
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		meta.Prev = s.pageURL(suffix, limit, prev)
	}
	if int64(offset+limit) < total {
		meta.Next = s.pageURL(suffix, limit, offset+limit)
	}
	return meta
}

// emptyProperties renders as {} rather than null.
var emptyProperties = struct{}{}
