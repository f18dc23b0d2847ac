package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// statusFor maps error kinds to HTTP status codes. This is the only
// place in the service that does so.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.InvalidInput:
		return http.StatusBadRequest
	case errs.RemoteTimeout:
		return http.StatusGatewayTimeout
	case errs.NotAcceptable:
		return http.StatusNotAcceptable
	default:
		// DatabaseUnavailable, RemoteServiceError, GeometryError,
		// ConfigurationError, Internal.
		return http.StatusInternalServerError
	}
}

// writeError logs the failure once and emits the {code, message} body.
// Nothing of the underlying error beyond its message crosses the wire.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)

	s.log.Warn("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("kind", kind.String()),
		zap.Int("status", status),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Error(err))

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal server error (check logs)"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    kind.String(),
		"message": message,
	})
}
