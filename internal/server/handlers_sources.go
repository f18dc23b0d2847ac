package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/geojson"
	"github.com/internetofwater/nldi-go/internal/navigate"
)

func (s *Server) handleLanding(c *gin.Context) {
	if !s.checkFormat(c) {
		return
	}
	root := s.deps.Config.RootURL()
	s.respond(c, http.StatusOK, gin.H{
		"title":       s.deps.Config.Metadata.Title,
		"description": s.deps.Config.Metadata.Description,
		"links": []gin.H{
			{
				"rel":   "self",
				"type":  "application/json",
				"title": "This document as JSON",
				"href":  root,
			},
			{
				"rel":   "data",
				"type":  "application/json",
				"title": "Sources",
				"href":  s.linkedDataURL(),
			},
			{
				"rel":   "service-desc",
				"type":  "application/vnd.oai.openapi+json;version=3.0",
				"title": "The OpenAPI definition as JSON",
				"href":  root + "/openapi",
			},
		},
	})
}

// handleListSources reports every registered source, the synthetic comid
// source first.
func (s *Server) handleListSources(c *gin.Context) {
	if !s.checkFormat(c) {
		return
	}

	content := []gin.H{{
		"source":     "comid",
		"sourceName": "NHDPlus comid",
		"features":   s.linkedDataURL("comid", "position"),
	}}
	for _, src := range s.deps.Sources.List() {
		content = append(content, gin.H{
			"source":     src.Suffix,
			"sourceName": src.Name,
			"features":   s.linkedDataURL(src.Suffix),
		})
	}
	s.respond(c, http.StatusOK, content)
}

// handleListFeatures returns one page of a source's features.
func (s *Server) handleListFeatures(c *gin.Context) {
	if !s.checkFeatureFormat(c) {
		return
	}
	suffix := c.Param("source")
	if suffix == navigate.ComidSource {
		s.writeError(c, errs.InvalidInputf("the comid source cannot be listed; look up /linked-data/comid/{comid}"))
		return
	}

	src, err := s.deps.Sources.Get(suffix)
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, offset, err := parsePaging(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	features, err := s.deps.Features.BySource(ctx, src.Suffix, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total, err := s.deps.Features.CountBySource(ctx, src.Suffix)
	if err != nil {
		s.writeError(c, err)
		return
	}

	shaped := make([]geojson.Feature, 0, len(features))
	for _, f := range features {
		shaped = append(shaped, s.featureGeoJSON(f))
	}
	s.respond(c, http.StatusOK, pagedCollection{
		Type:     "FeatureCollection",
		Features: shaped,
		Meta:     s.pageMetaFor(src.Suffix, limit, offset, total),
	})
}

// getFeature returns one indexed feature as a FeatureCollection.
func (s *Server) getFeature(c *gin.Context, suffix, identifier string) {
	if !s.checkFeatureFormat(c) {
		return
	}
	if _, err := s.deps.Sources.Get(suffix); err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	feature, err := s.deps.Features.ByID(ctx, suffix, identifier)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, http.StatusOK, geojson.NewCollection([]geojson.Feature{s.featureGeoJSON(*feature)}))
}
