// Package server is the HTTP surface of the NLDI. Handlers stay thin:
// they parse and validate parameters, call the domain stores through the
// Deps interfaces, and shape GeoJSON responses. Error classification is
// mapped to status codes in exactly one place.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/lookup"
	"github.com/internetofwater/nldi-go/internal/navigate"
	"github.com/internetofwater/nldi-go/internal/pygeoapi"
	"github.com/internetofwater/nldi-go/internal/source"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

// Version is stamped by the build; surfaced on /about/info.
var Version = "dev"

const requestTimeout = 15 * time.Second

// SourceCatalog resolves crawler sources from the registry snapshot.
type SourceCatalog interface {
	Get(suffix string) (source.Source, error)
	List() []source.Source
}

// FlowlineReader reads flowlines and feature/flowline relations.
type FlowlineReader interface {
	ByComid(ctx context.Context, comid int64) (*lookup.Flowline, error)
	PointAlongFlowline(ctx context.Context, suffix, identifier string) (*lookup.Point, error)
	DistanceFromFlowline(ctx context.Context, suffix, identifier string) (*float64, error)
	NearestPointOnFlowline(ctx context.Context, suffix, identifier string) (*lookup.Point, error)
	MeasureAtPoint(ctx context.Context, comid int64, point string) (*float64, *string, error)
}

// FeatureReader reads indexed features.
type FeatureReader interface {
	ByID(ctx context.Context, suffix, identifier string) (*lookup.Feature, error)
	BySource(ctx context.Context, suffix string, limit, offset int) ([]lookup.Feature, error)
	CountBySource(ctx context.Context, suffix string) (int64, error)
}

// CatchmentReader reads catchment polygons.
type CatchmentReader interface {
	ByComid(ctx context.Context, comid int64) (*lookup.Catchment, error)
	AtPoint(ctx context.Context, lon, lat float64) (*lookup.Catchment, error)
}

// BasinReader computes upstream basins.
type BasinReader interface {
	Upstream(ctx context.Context, comid int64, simplified bool) (json.RawMessage, error)
}

// Navigator runs network navigations and their projections.
type Navigator interface {
	ResolveAnchor(ctx context.Context, suffix, identifier string) (*navigate.Anchor, error)
	Navigate(ctx context.Context, opts navigate.Options, start int64) ([]int64, error)
	Flowlines(ctx context.Context, anchor *navigate.Anchor, opts navigate.Options, comids []int64) ([]lookup.Flowline, error)
	Features(ctx context.Context, suffix string, comids []int64) ([]lookup.Feature, error)
}

// GeoProcessor is the remote pygeoapi client.
type GeoProcessor interface {
	Flowtrace(ctx context.Context, lon, lat float64) (pygeoapi.Point, error)
	SplitCatchment(ctx context.Context, lon, lat float64) (json.RawMessage, error)
	Ping(ctx context.Context) error
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything the handlers reach for.
type Deps struct {
	Config     config.Config
	Log        *zap.Logger
	Metrics    *telemetry.Metrics
	Sources    SourceCatalog
	Flowlines  FlowlineReader
	Features   FeatureReader
	Catchments CatchmentReader
	Basins     BasinReader
	Nav        Navigator
	Remote     GeoProcessor
	DB         Pinger
}

// Server bundles the router and its dependencies.
type Server struct {
	deps   Deps
	log    *zap.Logger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	log := deps.Log.Named("http")
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(accessLogMiddleware(log, deps.Metrics))
	engine.Use(corsMiddleware())
	if deps.Config.Server.RateLimit > 0 {
		engine.Use(rateLimitMiddleware(deps.Config.Server.RateLimit))
	}

	server := &Server{deps: deps, log: log, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.deps.Config.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("server listening",
		zap.String("addr", srv.Addr),
		zap.String("root", s.deps.Config.RootURL()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.engine.Group(s.deps.Config.Server.BasePath)
	api.GET("", s.handleLanding)
	api.GET("/", s.handleLanding)
	api.GET("/about/info", s.handleInfo)
	api.GET("/about/health", s.handleHealth)
	api.GET("/openapi", s.handleOpenAPI)
	api.GET("/lookups", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, s.linkedDataURL())
	})

	ld := api.Group("/linked-data")
	ld.GET("", s.handleListSources)
	ld.GET("/hydrolocation", s.handleHydrolocation)

	// The comid routes are registered statically so the synthetic source
	// never collides with the :source wildcard.
	ld.GET("/comid/position", s.handleComidPosition)
	ld.GET("/comid/:comid", func(c *gin.Context) {
		s.getFlowline(c, c.Param("comid"))
	})
	ld.GET("/comid/:comid/basin", func(c *gin.Context) {
		s.getBasin(c, navigate.ComidSource, c.Param("comid"))
	})
	ld.GET("/comid/:comid/navigation", func(c *gin.Context) {
		s.getNavigationModes(c, navigate.ComidSource, c.Param("comid"))
	})
	ld.GET("/comid/:comid/navigation/:mode", func(c *gin.Context) {
		s.getNavigationIndex(c, navigate.ComidSource, c.Param("comid"), c.Param("mode"))
	})
	ld.GET("/comid/:comid/navigation/:mode/:dataSource", func(c *gin.Context) {
		s.runNavigation(c, navigate.ComidSource, c.Param("comid"), c.Param("mode"), c.Param("dataSource"))
	})

	ld.GET("/:source", s.handleListFeatures)
	ld.GET("/:source/:identifier", func(c *gin.Context) {
		s.getFeature(c, c.Param("source"), c.Param("identifier"))
	})
	ld.GET("/:source/:identifier/basin", func(c *gin.Context) {
		s.getBasin(c, c.Param("source"), c.Param("identifier"))
	})
	ld.GET("/:source/:identifier/navigation", func(c *gin.Context) {
		s.getNavigationModes(c, c.Param("source"), c.Param("identifier"))
	})
	ld.GET("/:source/:identifier/navigation/:mode", func(c *gin.Context) {
		s.getNavigationIndex(c, c.Param("source"), c.Param("identifier"), c.Param("mode"))
	})
	ld.GET("/:source/:identifier/navigation/:mode/:dataSource", func(c *gin.Context) {
		s.runNavigation(c, c.Param("source"), c.Param("identifier"), c.Param("mode"), c.Param("dataSource"))
	})
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
