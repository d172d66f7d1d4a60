// Package restapi wires ToolSurface onto gin REST routes and a
// gorilla/websocket live-output stream. Every handler body is a thin
// translation into/out of toolsurface calls; no session logic lives here.
package restapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// sendError writes a standardized error response.
func sendError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// sendJSON writes a JSON response with the given status code.
func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(c *gin.Context, name string, def int64) int64 {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func queryBool(c *gin.Context, name string) bool {
	v := c.Query(name)
	return v == "true" || v == "1"
}
