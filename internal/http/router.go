package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hazard-service/internal/metrics"
)

// NewRouter builds the gin engine with CORS, request logging, metrics and the API routes.
func NewRouter(h *Handler, m *metrics.Metrics, allowedOrigins []string, jwtSecret string, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log, m))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(m.Handler()))
	h.Register(r, AuthMiddleware(jwtSecret))
	return r
}

func requestLogger(log zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(start)
		m.ObserveHTTP(route, c.Writer.Status(), took)
		log.Debug().
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Dur("took", took).
			Msg("http request")
	}
}
