package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per board service request, tagged with the channel and
// content ids from the route and the client's TrackingID.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		if channel := c.Param("id"); channel != "" {
			event = event.Str("channel", channel)
		}
		if content := c.Param("contentId"); content != "" {
			event = event.Str("content_id", content)
		}
		if tracking := c.GetHeader("TrackingID"); tracking != "" {
			event = event.Str("tracking_id", tracking)
		} else {
			event = event.Bool("untracked", true)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Msg("board service request")
	}
}

// RequestMetricsMiddleware counts requests by route template so channel ids never
// become label values.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, route(c), c.Writer.Status())
	}
}

func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
