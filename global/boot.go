package global

import (
	"context"

	"ChatHub/global/config"
	"ChatHub/logger"
	"ChatHub/service/chat"
	"ChatHub/service/kafka"
	"ChatHub/service/mgo"
	"ChatHub/service/natsx"
	"ChatHub/service/storage"
	"ChatHub/service/storage/redis"
	"ChatHub/tools/errs"
	"ChatHub/tools/security"

	"go.uber.org/zap"
)

// Closer 启动过程中打开的资源，关闭顺序与打开相反
type Closer struct {
	fns []func() error
}

func (c *Closer) add(fn func() error) { c.fns = append(c.fns, fn) }

func (c *Closer) Close() error {
	var first error
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil && first == nil {
			first = err
		}
	}
	c.fns = nil
	return first
}

// Runtime 配置装配出来的依赖
type Runtime struct {
	Deps     chat.Deps
	Presence *storage.RedisPresence // 未启用 redis 时为 nil
	Closer   *Closer
}

// Build 按配置装配存储/在线状态/事件出口/鉴权
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Closer: &Closer{}}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Closer.Close()
		return nil, err
	}

	auth, err := BuildAuth(cfg.Auth)
	if err != nil {
		return fail(err)
	}
	rt.Deps.Auth = auth

	gw, err := buildGateway(ctx, cfg, rt.Closer)
	if err != nil {
		return fail(err)
	}
	rt.Deps.Gateway = gw

	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Config)
		if err != nil {
			return fail(err)
		}
		rt.Closer.add(rdb.Close)
		rt.Presence = storage.NewRedisPresence(rdb, cfg.Redis.PresenceTTL)
		rt.Deps.Presence = rt.Presence
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		return fail(err)
	}
	if pub != nil {
		// Publisher 由 Server.Shutdown 关闭
		rt.Deps.Publisher = pub
	}

	logger.Info("[boot] dependencies ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.String("auth", cfg.Auth.Mode),
		zap.Bool("presence", cfg.Redis.Enabled))
	return rt, nil
}

func BuildAuth(c config.AuthConfig) (chat.Authenticator, error) {
	switch c.Mode {
	case config.AuthPlain:
		logger.Warn("[boot] auth.mode=plain, bindUid token is trusted as user id")
		return chat.PlainAuthenticator{}, nil
	case config.AuthJWT:
		return chat.NewJWTAuthenticator(JWTOptions(c)), nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown auth mode", "mode", c.Mode)
	}
}

func JWTOptions(c config.AuthConfig) security.Options {
	opts := security.DefaultOptions([]byte(c.Secret))
	if c.Alg != "" {
		opts.Alg = c.Alg
	}
	if c.TTL > 0 {
		opts.TTL = c.TTL
	}
	return opts
}

func buildGateway(ctx context.Context, cfg *config.Config, closer *Closer) (chat.Gateway, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("[boot] storage.driver=memory, messages are not durable")
		return storage.NewMemory(), nil
	case config.StorageMongo:
		mctx, cancel := context.WithCancel(context.Background())
		mc := cfg.Storage.Mongo
		mgr := mgo.StartAsync(mctx, &mc)
		closer.add(func() error { cancel(); return nil })

		wctx, wcancel := context.WithTimeout(ctx, 10*cfg.Storage.OpTimeout)
		defer wcancel()
		if err := mgr.WaitReady(wctx); err != nil {
			// 后台继续重连，未就绪期间落库失败即不投递
			logger.Warn("[boot] mongo not ready yet", zap.Error(err))
		}
		return storage.NewMongo(mgr), nil
	case config.StoragePostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		closer.add(func() error { pg.Close(); return nil })
		if cfg.Storage.Postgres.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return pg, nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown storage driver", "driver", cfg.Storage.Driver)
	}
}

func buildPublisher(cfg *config.Config) (chat.Publisher, error) {
	switch cfg.Events.Driver {
	case config.EventsNone, "":
		return nil, nil
	case config.EventsNats:
		return natsx.NewPublisher(cfg.Events.Nats, cfg.Node.ID)
	case config.EventsKafka:
		return kafka.NewPublisher(cfg.Events.Kafka, cfg.Node.ID)
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown events driver", "driver", cfg.Events.Driver)
	}
}
