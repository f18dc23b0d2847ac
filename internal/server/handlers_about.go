package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/openapi"
)

func (s *Server) handleInfo(c *gin.Context) {
	if !s.checkFormat(c) {
		return
	}
	s.respond(c, http.StatusOK, gin.H{
		"name":    "nldi-go",
		"version": Version,
	})
}

// handleHealth probes the database and the remote geoprocessing service.
// The endpoint itself answers 200 as long as the server is up; each
// dependency reports its own status.
func (s *Server) handleHealth(c *gin.Context) {
	if !s.checkFormat(c) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	dbStatus := "up"
	if s.deps.DB == nil {
		dbStatus = "unknown"
	} else if err := s.deps.DB.Ping(ctx); err != nil {
		dbStatus = "down"
	}

	remoteStatus := "up"
	if s.deps.Remote == nil {
		remoteStatus = "unknown"
	} else if err := s.deps.Remote.Ping(ctx); err != nil {
		remoteStatus = "down"
	}

	s.respond(c, http.StatusOK, gin.H{
		"server":   gin.H{"status": "up"},
		"db":       gin.H{"status": dbStatus},
		"pygeoapi": gin.H{"status": remoteStatus},
	})
}

const openAPIHTML = `<!DOCTYPE html>
<html>
<head>
  <title>NLDI API documentation</title>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
  <redoc spec-url="?f=json"></redoc>
  <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>`

func (s *Server) handleOpenAPI(c *gin.Context) {
	doc := openapi.Build(s.deps.Config, s.deps.Sources.List())

	switch c.DefaultQuery("f", "json") {
	case "json":
		raw, err := doc.JSON(s.deps.Config.Server.PrettyPrint)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/vnd.oai.openapi+json;version=3.0", raw)
	case "yaml":
		raw, err := doc.YAML()
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/x-yaml", raw)
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(openAPIHTML))
	default:
		s.writeError(c, errs.New(errs.NotAcceptable, "unsupported format: %s", c.Query("f")))
	}
}
