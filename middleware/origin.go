package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"ChatHub/tools/errs"

	"github.com/gin-gonic/gin"
)

// OriginAllowed 空列表不限制；否则 Origin 的 scheme://host 必须在列表里。
// 没有 Origin 头的非浏览器客户端放行。
func OriginAllowed(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// Origin 在升级之前拦截 ws 路径上的跨域请求
func Origin(wsPath string, allowed []string) gin.HandlerFunc {
	check := OriginAllowed(allowed)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == wsPath && !check(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, errs.ErrArgs.WithDetail("origin not allowed"))
			return
		}
		c.Next()
	}
}
