package router

import (
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineConfig configures the global middleware stack.
type EngineConfig struct {
	HTTP    config.HTTPConfig
	Tracing middleware.TracingConfig
	Logger  *zap.Logger
}

// NewEngine creates a gin engine with the global middleware applied in order:
// RequestID, Recovery, Tracing, request logging, security headers, CORS and
// the body limit. Unknown routes answer in the API error format.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Tracing))
	engine.Use(middleware.TraceRequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS(cfg.HTTP))
	if cfg.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	}
	engine.NoRoute(middleware.NoRoute())

	return engine
}
