package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/geojson"
	"github.com/internetofwater/nldi-go/internal/navigate"
)

// getNavigationModes reports the navigation index for a feature. Point to
// point is only offered when starting from a raw comid.
func (s *Server) getNavigationModes(c *gin.Context, suffix, identifier string) {
	if !s.checkFormat(c) {
		return
	}
	if err := s.checkSource(suffix); err != nil {
		s.writeError(c, err)
		return
	}

	navURL := s.navigationURL(suffix, identifier)
	content := gin.H{
		"upstreamMain":         navURL + "/UM",
		"upstreamTributaries":  navURL + "/UT",
		"downstreamMain":       navURL + "/DM",
		"downstreamDiversions": navURL + "/DD",
	}
	if suffix == navigate.ComidSource {
		content["pointToPoint"] = navURL + "/PP"
	}
	s.respond(c, http.StatusOK, content)
}

// getNavigationIndex lists the data sources reachable under one mode,
// flowlines first.
func (s *Server) getNavigationIndex(c *gin.Context, suffix, identifier, modeStr string) {
	if !s.checkFormat(c) {
		return
	}
	if err := s.checkSource(suffix); err != nil {
		s.writeError(c, err)
		return
	}
	mode, err := navigate.ParseMode(modeStr)
	if err != nil {
		s.writeError(c, err)
		return
	}

	navURL := s.navigationURL(suffix, identifier)
	content := []gin.H{{
		"source":     "Flowlines",
		"sourceName": "NHDPlus flowlines",
		"features":   navURL + "/" + string(mode) + "/flowlines",
	}}
	for _, src := range s.deps.Sources.List() {
		content = append(content, gin.H{
			"source":     src.Suffix,
			"sourceName": src.Name,
			"features":   navURL + "/" + string(mode) + "/" + src.Suffix,
		})
	}
	s.respond(c, http.StatusOK, content)
}

// runNavigation is the primary navigation call: walk the network from the
// anchor and project the result onto flowlines or a data source.
func (s *Server) runNavigation(c *gin.Context, suffix, identifier, modeStr, dataSource string) {
	if !s.checkFeatureFormat(c) {
		return
	}
	s.logLegacy(c)

	if err := s.checkSource(suffix); err != nil {
		s.writeError(c, err)
		return
	}
	opts, err := s.parseNavigationOptions(c, modeStr)
	if err != nil {
		s.writeError(c, err)
		return
	}

	wantFlowlines := dataSource == "flowlines"
	if !wantFlowlines {
		if _, err := s.deps.Sources.Get(dataSource); err != nil {
			s.writeError(c, err)
			return
		}
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	anchor, err := s.deps.Nav.ResolveAnchor(ctx, suffix, identifier)
	if err != nil {
		s.writeError(c, err)
		return
	}
	comids, err := s.deps.Nav.Navigate(ctx, opts, anchor.Comid)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if wantFlowlines {
		flowlines, err := s.deps.Nav.Flowlines(ctx, anchor, opts, comids)
		if err != nil {
			s.writeError(c, err)
			return
		}
		shaped := make([]geojson.Feature, 0, len(flowlines))
		for _, fl := range flowlines {
			shaped = append(shaped, navigatedFlowlineGeoJSON(fl))
		}
		s.respond(c, http.StatusOK, geojson.NewCollection(shaped))
		return
	}

	features, err := s.deps.Nav.Features(ctx, dataSource, comids)
	if err != nil {
		s.writeError(c, err)
		return
	}
	shaped := make([]geojson.Feature, 0, len(features))
	for _, f := range features {
		shaped = append(shaped, s.featureGeoJSON(f))
	}
	s.respond(c, http.StatusOK, geojson.NewCollection(shaped))
}

func (s *Server) parseNavigationOptions(c *gin.Context, modeStr string) (navigate.Options, error) {
	mode, err := navigate.ParseMode(modeStr)
	if err != nil {
		return navigate.Options{}, err
	}
	opts := navigate.Options{Mode: mode}

	if v := c.Query("distance"); v != "" {
		opts.DistanceKm, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, errs.InvalidInputf("invalid distance: %s", v)
		}
	} else if mode != navigate.PP {
		return opts, errs.InvalidInputf("distance is required")
	}

	if v := c.Query("stopComid"); v != "" {
		stop, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, errs.InvalidInputf("invalid stopComid: %s", v)
		}
		opts.StopComid = &stop
	}

	opts.TrimStart, err = parseBoolParam(c, "trimStart", false)
	if err != nil {
		return opts, err
	}
	opts.ExcludeGeometry, err = parseBoolParam(c, "excludeGeometry", false)
	if err != nil {
		return opts, err
	}
	if v := c.Query("trimTolerance"); v != "" {
		opts.TrimTolerance, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, errs.InvalidInputf("invalid trimTolerance: %s", v)
		}
	}

	return opts, opts.Validate()
}

// checkSource rejects unknown source suffixes; the synthetic comid source
// is always resolvable.
func (s *Server) checkSource(suffix string) error {
	if suffix == navigate.ComidSource {
		return nil
	}
	_, err := s.deps.Sources.Get(suffix)
	return err
}
