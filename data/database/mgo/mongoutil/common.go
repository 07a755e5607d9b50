package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
)

// 鉴权类错误码，重连也不会好
var authErrorCodes = map[int32]struct{}{
	13: {}, // Unauthorized
	18: {}, // AuthenticationFailed
}

// buildMongoURI 由地址列表拼连接串；账号密码做 URL 转义
func buildMongoURI(c *Config, authSource string) string {
	var b strings.Builder
	b.WriteString("mongodb://")
	if c.Username != "" && c.Password != "" {
		b.WriteString(url.UserPassword(c.Username, c.Password).String())
		b.WriteByte('@')
	}
	b.WriteString(strings.Join(c.Address, ","))
	b.WriteByte('/')
	b.WriteString(c.Database)

	q := "authSource=" + url.QueryEscape(authSource) + "&maxPoolSize=" + strconv.Itoa(c.MaxPoolSize)
	b.WriteByte('?')
	b.WriteString(q)
	return b.String()
}

// shouldRetry ctx 已结束或鉴权失败时放弃
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		_, fatal := authErrorCodes[cmdErr.Code]
		return !fatal
	}
	return true
}
