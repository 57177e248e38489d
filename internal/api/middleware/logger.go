package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Query parameters that may carry credentials. Their values never reach
// the logs.
var redactedParams = map[string]bool{
	"api_key":  true,
	"key":      true,
	"token":    true,
	"secret":   true,
	"password": true,
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	params, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}

	dirty := false
	for name, values := range params {
		if !redactedParams[strings.ToLower(name)] {
			continue
		}
		for i := range values {
			values[i] = "[REDACTED]"
		}
		dirty = true
	}
	if !dirty {
		return raw
	}
	return params.Encode()
}

// RequestLogger logs each request with zerolog, leveled by response status.
// The eligibility endpoint is called by processing jobs at high volume, so
// successful eligibility checks log at debug instead of info.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		reqPath := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case strings.Contains(reqPath, "/eligibility/"):
			event = log.Debug()
		default:
			event = log.Info()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", reqPath).
			Str("query", query).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}
