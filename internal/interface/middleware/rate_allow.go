package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-guard/pkg/response"
)

// AllowPrivateIP bypasses the limiter for loopback and private addresses.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		addr := ClientAddr(c)
		return addr.IsValid() && (addr.IsLoopback() || addr.IsPrivate())
	}
}

// PrivateNetworkOnly rejects requests from public addresses.
func PrivateNetworkOnly() gin.HandlerFunc {
	allow := AllowPrivateIP()
	return func(c *gin.Context) {
		if !allow(c) {
			response.Error[any](c, http.StatusForbidden, "forbidden", nil)
			return
		}
		c.Next()
	}
}
