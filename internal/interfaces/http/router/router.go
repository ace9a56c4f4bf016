// Package router assembles the gin engine and mounts the API routes.
package router

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// mount is a registrar with the middleware scoped to its routes.
type mount struct {
	registrar  RouteRegistrar
	middleware []gin.HandlerFunc
}

// Router manages HTTP route registration. Public registrars are mounted at
// the root; API registrars under /api/{version} behind the API middleware.
type Router struct {
	engine        *gin.Engine
	apiVersion    string
	apiMiddleware []gin.HandlerFunc
	public        []mount
	api           []mount
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAPIMiddleware adds middleware run before every API route, after the
// engine's global middleware.
func WithAPIMiddleware(middleware ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.apiMiddleware = append(r.apiMiddleware, middleware...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds an authenticated API registrar. middleware runs after the
// API middleware and only for this registrar's routes.
func (r *Router) Register(registrar RouteRegistrar, middleware ...gin.HandlerFunc) *Router {
	r.api = append(r.api, mount{registrar: registrar, middleware: middleware})
	return r
}

// RegisterPublic adds a registrar mounted at the root without the API
// middleware.
func (r *Router) RegisterPublic(registrar RouteRegistrar, middleware ...gin.HandlerFunc) *Router {
	r.public = append(r.public, mount{registrar: registrar, middleware: middleware})
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	root := &r.engine.RouterGroup
	for _, m := range r.public {
		m.registrar.RegisterRoutes(root.Group("", m.middleware...))
	}

	api := r.engine.Group("/api/"+r.apiVersion, r.apiMiddleware...)
	for _, m := range r.api {
		m.registrar.RegisterRoutes(api.Group("", m.middleware...))
	}
}

// APIPrefix returns the path prefix of the API routes.
func (r *Router) APIPrefix() string {
	return "/api/" + r.apiVersion
}
