package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coworking/internal/pkg/response"
)

const requestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an id, echoing the caller's
// header when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request and everything handlers attached
// with c.Error. Panics are recovered into a 500 envelope.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error().
					Str("request_id", requestID(c)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("panic", fmt.Sprintf("%v", recovered)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				c.Abort()
				return
			}
			logRequest(log, c, start)
		}()

		c.Next()
	}
}

func logRequest(log zerolog.Logger, c *gin.Context, start time.Time) {
	status := c.Writer.Status()
	ev := log.Debug()
	switch {
	case status >= http.StatusInternalServerError || len(c.Errors) > 0:
		ev = log.Error()
	case status >= http.StatusBadRequest:
		ev = log.Info()
	}

	ev = ev.
		Str("request_id", requestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("query", c.Request.URL.RawQuery).
		Int("status", status).
		Str("client_ip", c.ClientIP()).
		Dur("latency", time.Since(start))
	if uid := c.GetInt64("user_id"); uid > 0 {
		ev = ev.Int64("user_id", uid)
	}
	if len(c.Errors) > 0 {
		ev = ev.Strs("errors", c.Errors.Errors())
	}
	ev.Msg("request")
}

func requestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader(requestIDHeader)
}
