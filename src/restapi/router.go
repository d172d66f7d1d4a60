package restapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loopwire/termsession/src/config"
	"github.com/loopwire/termsession/src/toolerr"
	"github.com/loopwire/termsession/src/toolsurface"
)

// Options configures SetupRouter.
type Options struct {
	CORS                  config.CORS
	DisableRequestLogging bool
	EnableProcessingTime  bool
}

// SetupRouter configures every REST + WebSocket route, mirroring the
// teacher's SetupRouter but scoped to terminal operations only.
func SetupRouter(surface *toolsurface.Surface, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(opts.CORS.Origin))
	r.Use(noCacheMiddleware())
	if opts.EnableProcessingTime {
		r.Use(processingTimeMiddleware())
	}
	if !opts.DisableRequestLogging {
		r.Use(logrusMiddleware())
	}

	h := &handlers{surface: surface}

	r.GET("/health", h.health)

	api := r.Group("/api/terminals")
	api.GET("", h.list)
	api.POST("", h.create)
	api.POST("/kill-all", h.killAll)
	api.GET("/:name", h.summary)
	api.DELETE("/:name", h.kill)
	api.POST("/:name/input", h.write)
	api.GET("/:name/output", h.read)
	api.GET("/:name/stats", h.stats)
	api.POST("/:name/resize", h.resize)
	api.GET("/:name/stream", h.stream)

	return r
}

// statusFor maps a toolerr sentinel to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, toolerr.NotFound):
		return http.StatusNotFound
	case errors.Is(err, toolerr.NameInUse):
		return http.StatusConflict
	case errors.Is(err, toolerr.SessionTerminated):
		return http.StatusGone
	case errors.Is(err, toolerr.BlacklistedCommand):
		return http.StatusForbidden
	case errors.Is(err, toolerr.InvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, toolerr.SpawnFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
