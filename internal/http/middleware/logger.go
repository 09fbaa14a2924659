package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request once the handler chain has
// run. Server errors log at error level so they stand out of the access log.
func Logger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		requestID := ""
		if v, ok := c.Get(RequestIDHeader); ok {
			requestID, _ = v.(string)
		}

		evt := l.Info()
		if c.Writer.Status() >= 500 || len(c.Errors) > 0 {
			evt = l.Error().Strs("errors", c.Errors.Errors())
		}
		evt.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
