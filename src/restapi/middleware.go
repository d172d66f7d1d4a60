package restapi

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	return func(c *gin.Context) {
		origin := "*"
		if !allowAll {
			origin = strings.Join(origins, ", ")
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Writer.Header().Set("Pragma", "no-cache")
		c.Writer.Header().Set("Expires", "0")
		c.Next()
	}
}

// sensitiveQueryParams are redacted from request logs.
var sensitiveQueryParams = []string{"token", "access_token", "password", "secret", "key", "authorization", "session", "jwt"}

func redactSecrets(pathWithQuery string) string {
	parts := strings.SplitN(pathWithQuery, "?", 2)
	if len(parts) != 2 {
		return pathWithQuery
	}
	values, err := url.ParseQuery(parts[1])
	if err != nil {
		return redactQueryPatterns(pathWithQuery)
	}
	changed := false
	for key := range values {
		for _, p := range sensitiveQueryParams {
			if strings.EqualFold(key, p) {
				values.Set(key, "[REDACTED]")
				changed = true
			}
		}
	}
	if !changed {
		return pathWithQuery
	}
	return parts[0] + "?" + values.Encode()
}

func redactQueryPatterns(pathWithQuery string) string {
	result := pathWithQuery
	for _, p := range sensitiveQueryParams {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(p) + `=)[^&\s]*`)
		result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
	}
	return result
}

func logrusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		sanitized := redactSecrets(path)

		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))
		status := c.Writer.Status()

		if len(c.Errors) > 0 {
			logrus.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}
		msg := fmt.Sprintf("%s %s %d %dms", c.Request.Method, sanitized, status, latency)
		if status >= http.StatusBadRequest {
			logrus.Error(msg)
		} else {
			logrus.Info(msg)
		}
	}
}

// processingTimeWriter wraps gin.ResponseWriter to add a Server-Timing
// header reporting handler processing time.
type processingTimeWriter struct {
	gin.ResponseWriter
	start   time.Time
	written bool
}

func (w *processingTimeWriter) writeHeader() {
	if w.written {
		return
	}
	latency := float64(time.Since(w.start).Nanoseconds()) / 1e6
	w.Header().Set("Server-Timing", fmt.Sprintf("total;dur=%.2f", latency))
	w.written = true
}

func (w *processingTimeWriter) WriteHeader(code int) {
	w.writeHeader()
	w.ResponseWriter.WriteHeader(code)
}

func (w *processingTimeWriter) Write(data []byte) (int, error) {
	w.writeHeader()
	return w.ResponseWriter.Write(data)
}

func processingTimeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &processingTimeWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Next()
	}
}
