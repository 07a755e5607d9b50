package security

import (
	"net/http"
	"strings"

	"ChatHub/tools/errs"
	"ChatHub/tools/security"

	"github.com/gin-gonic/gin"
)

// context key，后续 handler 统一用这两个 key 读取
const (
	CtxUserIDKey = "userID"
	CtxTokenKey  = "authorization"
)

type Options struct {
	JWT         security.Options
	HeaderToken string // 默认 "authorization"，兼容 Authorization: Bearer xxx
	HeaderHash  string // 非空时要求请求头携带 token hash
}

func DefaultOptions(jwt security.Options) *Options {
	return &Options{JWT: jwt, HeaderToken: CtxTokenKey}
}

// Middleware 校验 JWT，sub 写入 context
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, opts.HeaderToken)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated.WithDetail("missing token"))
			return
		}
		var hash string
		if opts.HeaderHash != "" {
			hash = strings.TrimSpace(c.GetHeader(opts.HeaderHash))
			if hash == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated.WithDetail("missing token hash"))
				return
			}
		}
		claims, err := security.Verify(opts.JWT, token, hash)
		if err != nil || claims.Subject() == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}
		c.Set(CtxTokenKey, token)
		c.Set(CtxUserIDKey, claims.Subject())
		c.Next()
	}
}

// UserID 取鉴权后的用户
func UserID(c *gin.Context) string { return c.GetString(CtxUserIDKey) }

func extractToken(c *gin.Context, header string) string {
	if header != "" && !strings.EqualFold(header, "Authorization") {
		if t := strings.TrimSpace(c.GetHeader(header)); t != "" && !hasBearer(t) {
			return t
		}
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if hasBearer(authz) {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

func hasBearer(s string) bool {
	return len(s) > len("bearer ") && strings.EqualFold(s[:len("bearer ")], "bearer ")
}
