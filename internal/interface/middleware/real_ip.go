package middleware

import (
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxRealIPKey = "real_ip"

// RealIP sets the real client IP into Gin context (key: "real_ip").
// Priority:
// 1) CF-Connecting-IP (Cloudflare)
// 2) X-Forwarded-For (left-most)
// 3) fallback to c.ClientIP()
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1) Cloudflare header
		if addr, ok := parseAddr(c.GetHeader("CF-Connecting-IP")); ok {
			c.Set(CtxRealIPKey, addr.String())
			c.Next()
			return
		}
		// 2) X-Forwarded-For: take left-most
		if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := parseAddr(first); ok {
				c.Set(CtxRealIPKey, addr.String())
				c.Next()
				return
			}
		}
		// 3) Fallback
		c.Set(CtxRealIPKey, c.ClientIP())
		c.Next()
	}
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// ClientAddr returns the request's source address as tracked by the guard.
// An unparsable address yields the zero Addr, which is tracked as one bucket.
func ClientAddr(c *gin.Context) netip.Addr {
	addr, _ := parseAddr(ipFromCtx(c))
	return addr
}
