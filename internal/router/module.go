package router

import "github.com/gin-gonic/gin"

// Module registers a feature's routes on the group it is mounted under.
type Module interface {
	Register(rg *gin.RouterGroup)
}

// mount pairs a module with the path prefix it lives under.
type mount struct {
	prefix string
	module Module
}
