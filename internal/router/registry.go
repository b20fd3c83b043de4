package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-guard/pkg/response"
)

// Registry collects modules and mounts them once the engine is configured.
// Modules added with Add live under the API prefix and share its
// middleware; Mount places a module under any other prefix without it.
type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	middlewares []gin.HandlerFunc
	mounts      []mount
}

func NewRegistry(engine *gin.Engine, apiPrefix string) *Registry {
	if apiPrefix == "" {
		apiPrefix = "/api"
	}
	return &Registry{Engine: engine, API: engine.Group(apiPrefix)}
}

// Use appends middleware applied to the API group only.
func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *Registry) Add(mod Module) {
	r.mounts = append(r.mounts, mount{module: mod})
}

func (r *Registry) Mount(prefix string, mod Module) {
	r.mounts = append(r.mounts, mount{prefix: prefix, module: mod})
}

func (r *Registry) RegisterAll() {
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.mounts {
		if m.prefix == "" {
			m.module.Register(r.API)
			continue
		}
		m.module.Register(r.Engine.Group(m.prefix))
	}

	r.Engine.HandleMethodNotAllowed = true
	r.Engine.NoRoute(func(c *gin.Context) {
		response.Error[any](c, http.StatusNotFound, "route not found", nil)
	})
	r.Engine.NoMethod(func(c *gin.Context) {
		response.Error[any](c, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
}
