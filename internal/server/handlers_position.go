package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/geojson"
	"github.com/internetofwater/nldi-go/internal/lookup"
	"github.com/internetofwater/nldi-go/internal/navigate"
	"github.com/internetofwater/nldi-go/internal/wkt"
)

// snapDistanceMeters is how far a point feature may sit from its flowline
// before split-catchment falls back to the flowtrace service.
const snapDistanceMeters = 200

// getFlowline serves /linked-data/comid/{comid}.
func (s *Server) getFlowline(c *gin.Context, identifier string) {
	if !s.checkFeatureFormat(c) {
		return
	}
	comid, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		s.writeError(c, errs.InvalidInputf("invalid comid: %s", identifier))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	flowline, err := s.deps.Flowlines.ByComid(ctx, comid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, http.StatusOK, geojson.NewCollection([]geojson.Feature{s.flowlineGeoJSON(*flowline)}))
}

// handleComidPosition resolves coordinates to the containing catchment.
func (s *Server) handleComidPosition(c *gin.Context) {
	if !s.checkFeatureFormat(c) {
		return
	}
	lon, lat, err := wkt.ParsePoint(c.Query("coords"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	catchment, err := s.deps.Catchments.AtPoint(ctx, lon, lat)
	if err != nil {
		s.writeError(c, err)
		return
	}

	comid := catchment.FeatureID
	feature := geojson.NewFeature(catchment.Geometry, geojson.FlowlineProperties{
		Source:     "comid",
		SourceName: "NHDPlus comid",
		Comid:      comidString(&comid),
		Navigation: s.navigationURL("comid", comidString(&comid)),
	})
	s.respond(c, http.StatusOK, geojson.NewCollection([]geojson.Feature{feature}))
}

// handleHydrolocation traces the given coordinates onto the flowline
// network via the remote flowtrace process and reports both the computed
// and the provided point.
func (s *Server) handleHydrolocation(c *gin.Context) {
	if !s.checkFeatureFormat(c) {
		return
	}
	lon, lat, err := wkt.ParsePoint(c.Query("coords"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := s.remoteContext(c)
	defer cancel()

	traced, err := s.deps.Remote.Flowtrace(ctx, lon, lat)
	if err != nil {
		s.writeError(c, err)
		return
	}
	catchment, err := s.deps.Catchments.AtPoint(ctx, traced.Lon, traced.Lat)
	if err != nil {
		s.writeError(c, err)
		return
	}
	comid := catchment.FeatureID
	measure, reachcode, err := s.deps.Flowlines.MeasureAtPoint(ctx, comid, wkt.Point(traced.Lon, traced.Lat))
	if err != nil {
		s.writeError(c, err)
		return
	}

	indexed := geojson.NewFeature(geojson.Point(traced.Lon, traced.Lat), geojson.HydroLocationProperties{
		Navigation: s.navigationURL("comid", comidString(&comid)),
		Measure:    measure,
		Reachcode:  orEmpty(reachcode),
		Source:     "indexed",
		SourceName: "Automatically indexed by the NLDI",
		Comid:      comidString(&comid),
		Type:       "hydrolocation",
	})
	provided := geojson.NewFeature(geojson.Point(lon, lat), geojson.HydroLocationProperties{
		Source:     "provided",
		SourceName: "Provided via API call",
		Type:       "point",
	})
	s.respond(c, http.StatusOK, geojson.NewCollection([]geojson.Feature{indexed, provided}))
}

// getBasin serves /linked-data/{source}/{identifier}/basin.
func (s *Server) getBasin(c *gin.Context, suffix, identifier string) {
	if !s.checkFeatureFormat(c) {
		return
	}
	simplified, err := parseBoolParam(c, "simplified", true)
	if err != nil {
		s.writeError(c, err)
		return
	}
	split, err := parseBoolParam(c, "splitCatchment", false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.checkSource(suffix); err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := s.remoteContext(c)
	defer cancel()

	anchor, err := s.deps.Nav.ResolveAnchor(ctx, suffix, identifier)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var geometry json.RawMessage
	if split && s.isPointSource(suffix) {
		geometry, err = s.splitBasin(ctx, suffix, identifier)
	} else {
		geometry, err = s.deps.Basins.Upstream(ctx, anchor.Comid, simplified)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	feature := geojson.NewFeature(geometry, emptyProperties)
	s.respond(c, http.StatusOK, geojson.NewCollection([]geojson.Feature{feature}))
}

// splitBasin finds the precise split point for a point-indexed feature:
// the measure-interpolated point on its flowline when one exists, the
// snapped closest point when the feature sits within snapping distance,
// and the remote flowtrace otherwise. The split catchment is then
// computed remotely at that point.
func (s *Server) splitBasin(ctx context.Context, suffix, identifier string) (json.RawMessage, error) {
	point, err := s.deps.Flowlines.PointAlongFlowline(ctx, suffix, identifier)
	if err != nil {
		return nil, err
	}

	if point == nil {
		distance, err := s.deps.Flowlines.DistanceFromFlowline(ctx, suffix, identifier)
		if err != nil {
			return nil, err
		}
		if distance != nil && *distance <= snapDistanceMeters {
			point, err = s.deps.Flowlines.NearestPointOnFlowline(ctx, suffix, identifier)
			if err != nil {
				return nil, err
			}
		}
	}

	if point == nil {
		feature, err := s.deps.Features.ByID(ctx, suffix, identifier)
		if err != nil {
			return nil, err
		}
		if feature.Lon == nil || feature.Lat == nil {
			return nil, errs.New(errs.GeometryError, "feature %s/%s has no location", suffix, identifier)
		}
		traced, err := s.deps.Remote.Flowtrace(ctx, *feature.Lon, *feature.Lat)
		if err != nil {
			return nil, err
		}
		point = &lookup.Point{Lon: traced.Lon, Lat: traced.Lat}
	}

	geom, err := s.deps.Remote.SplitCatchment(ctx, point.Lon, point.Lat)
	if err != nil {
		return nil, err
	}
	return geom, nil
}

func (s *Server) isPointSource(suffix string) bool {
	if suffix == navigate.ComidSource {
		return false
	}
	src, err := s.deps.Sources.Get(suffix)
	if err != nil {
		return false
	}
	return src.IngestType != nil && *src.IngestType == "point"
}

// remoteContext allows for the configured pygeoapi timeout plus a little
// slack on handlers that may call out.
func (s *Server) remoteContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.deps.Config.Pygeoapi.TimeoutSeconds)*time.Second + 5*time.Second
	if timeout < requestTimeout {
		timeout = requestTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
