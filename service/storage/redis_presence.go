package storage

import (
	"context"
	"errors"
	"time"

	"ChatHub/tools/errs"

	"github.com/redis/go-redis/v9"
)

const presencePrefix = "im:presence:"

// presence key: im:presence:<user>，value 为网关ID，TTL 控制在线有效期
func presenceKey(user string) string { return presencePrefix + user }

type RedisPresence struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisPresence(rdb redis.UniversalClient, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

// Online 标记在线并续期 TTL
func (p *RedisPresence) Online(ctx context.Context, user, gatewayID string) error {
	if p.rdb == nil {
		return errs.ErrInternalServer.WrapMsg("redis not initialized")
	}
	return errs.WrapMsg(p.rdb.Set(ctx, presenceKey(user), gatewayID, p.ttl).Err(), "presence online", "user", user)
}

// Offline 主动下线（删 key）
func (p *RedisPresence) Offline(ctx context.Context, user string) error {
	if p.rdb == nil {
		return errs.ErrInternalServer.WrapMsg("redis not initialized")
	}
	return errs.WrapMsg(p.rdb.Del(ctx, presenceKey(user)).Err(), "presence offline", "user", user)
}

// Lookup 查询是否在线及所在网关
func (p *RedisPresence) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	if p.rdb == nil {
		return "", false, errs.ErrInternalServer.WrapMsg("redis not initialized")
	}
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.WrapMsg(err, "presence lookup", "user", user)
	}
	return val, true, nil
}
