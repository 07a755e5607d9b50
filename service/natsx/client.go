package natsx

import (
	"strings"
	"time"

	"ChatHub/logger"
	"ChatHub/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Mode 工作模式
type Mode string

const (
	Core      Mode = "core"      // 无持久化
	JetStream Mode = "jetstream" // 需要服务端已建好 stream
)

// Config 客户端配置
type Config struct {
	Servers         []string      `yaml:"servers"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Subject         string        `yaml:"subject"`
	Mode            Mode          `yaml:"mode"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	Timeout         time.Duration `yaml:"timeout"`
	PublishAsyncMax int           `yaml:"publish_async_max"`
}

func (c *Config) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.PublishAsyncMax == 0 {
		c.PublishAsyncMax = 4096
	}
	if c.Subject == "" {
		c.Subject = "chat.message.created"
	}
	if c.Mode == "" {
		c.Mode = Core
	}
	if c.Name == "" {
		c.Name = "chathub"
	}
}

func (c Config) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[nats] disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[nats] reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.User != "" {
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	return opts
}

// Connect 连接 NATS，JetStream 模式下同时初始化 js 上下文
func Connect(cfg Config) (*nats.Conn, nats.JetStreamContext, error) {
	cfg.norm()
	if len(cfg.Servers) == 0 {
		return nil, nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), cfg.options()...)
	if err != nil {
		return nil, nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	if cfg.Mode != JetStream {
		return nc, nil, nil
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(cfg.PublishAsyncMax))
	if err != nil {
		nc.Close()
		return nil, nil, errs.WrapMsg(err, "init jetstream")
	}
	return nc, js, nil
}
