package config

import (
	"os"
	"strings"
	"time"

	"ChatHub/data/database/mgo/mongoutil"
	"ChatHub/service/kafka"
	"ChatHub/service/natsx"
	"ChatHub/service/storage/redis"
	"ChatHub/tools"
	"ChatHub/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"

	EventsNone  = "none"
	EventsNats  = "nats"
	EventsKafka = "kafka"

	AuthJWT   = "jwt"
	AuthPlain = "plain"
)

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	HTTP    HTTPConfig    `yaml:"http"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Hub     HubConfig     `yaml:"hub"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Events  EventsConfig  `yaml:"events"`
	Log     LogConfig     `yaml:"log"`
}

type NodeConfig struct {
	ID        string `yaml:"id"`        // 网关ID，写入在线状态
	Snowflake int64  `yaml:"snowflake"` // 雪花节点号 0~1023
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	WSPath         string   `yaml:"ws_path"`
	AllowedOrigins []string `yaml:"allowed_origins"` // 空 = 不限制
	ReadLimit      int64    `yaml:"read_limit"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // 健康检查；空 = 不启动
}

type HubConfig struct {
	SendQueue   int           `yaml:"send_queue"`
	IdleTimeout time.Duration `yaml:"idle_timeout"` // 0 = 不踢空闲连接
	SweepEvery  time.Duration `yaml:"sweep_every"`
	WriteWait   time.Duration `yaml:"write_wait"`
}

type AuthConfig struct {
	Mode   string        `yaml:"mode"`
	Secret string        `yaml:"secret"`
	Alg    string        `yaml:"alg"`
	TTL    time.Duration `yaml:"ttl"`
}

type StorageConfig struct {
	Driver    string           `yaml:"driver"`
	OpTimeout time.Duration    `yaml:"op_timeout"`
	Mongo     mongoutil.Config `yaml:"mongo"`
	Postgres  PostgresConfig   `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	EnsureSchema bool   `yaml:"ensure_schema"`
}

type RedisConfig struct {
	Enabled      bool `yaml:"enabled"`
	redis.Config `yaml:",inline"`
	PresenceTTL  time.Duration `yaml:"presence_ttl"`
}

type EventsConfig struct {
	Driver  string        `yaml:"driver"`
	Timeout time.Duration `yaml:"timeout"`
	Nats    natsx.Config  `yaml:"nats"`
	Kafka   kafka.Config  `yaml:"kafka"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{ID: "chathub-1", Snowflake: 1},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			WSPath:    "/ws",
			ReadLimit: 1 << 20,
		},
		Hub: HubConfig{
			SendQueue:  256,
			SweepEvery: 10 * time.Second,
			WriteWait:  10 * time.Second,
		},
		Auth:    AuthConfig{Mode: AuthJWT, Alg: "HS256", TTL: 2 * time.Hour},
		Storage: StorageConfig{Driver: StorageMemory, OpTimeout: 3 * time.Second},
		Redis:   RedisConfig{PresenceTTL: 2 * time.Minute},
		Events:  EventsConfig{Driver: EventsNone, Timeout: 2 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// Load 默认值 <- YAML 文件 <- 环境变量；path 为空时读 HUB_CONFIG
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = tools.GetEnv("HUB_CONFIG", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config file", "path", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errs.WrapMsg(err, "parse config file", "path", path)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Node.ID = tools.GetEnv("GATEWAY_ID", c.Node.ID)
	c.HTTP.Addr = tools.GetEnv("HUB_HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = tools.GetEnv("HUB_GRPC_ADDR", c.GRPC.Addr)
	c.Auth.Secret = tools.GetEnv("HUB_JWT_SECRET", c.Auth.Secret)
	c.Auth.Mode = tools.GetEnv("HUB_AUTH_MODE", c.Auth.Mode)
	c.Storage.Driver = tools.GetEnv("HUB_STORAGE", c.Storage.Driver)
	c.Storage.Postgres.DSN = tools.GetEnv("DATABASE_URL", c.Storage.Postgres.DSN)
	c.Events.Driver = tools.GetEnv("HUB_EVENTS", c.Events.Driver)
	c.Log.Level = tools.GetEnv("HUB_LOG_LEVEL", c.Log.Level)
	c.Hub.IdleTimeout = tools.GetEnvDuration("HUB_IDLE_TIMEOUT", c.Hub.IdleTimeout)
	c.Node.Snowflake = int64(tools.GetEnvInt("HUB_SNOWFLAKE_NODE", int(c.Node.Snowflake)))
	if v := tools.GetEnv("HUB_ALLOWED_ORIGINS", ""); v != "" {
		c.HTTP.AllowedOrigins = tools.SplitCSV(v)
	}
}

// applyDefaults YAML 里显式写 0/空 的字段回落到默认
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.HTTP.WSPath == "" {
		c.HTTP.WSPath = d.HTTP.WSPath
	}
	if c.HTTP.ReadLimit == 0 {
		c.HTTP.ReadLimit = d.HTTP.ReadLimit
	}
	if c.Hub.SweepEvery == 0 {
		c.Hub.SweepEvery = d.Hub.SweepEvery
	}
	if c.Hub.WriteWait == 0 {
		c.Hub.WriteWait = d.Hub.WriteWait
	}
	if c.Storage.OpTimeout == 0 {
		c.Storage.OpTimeout = d.Storage.OpTimeout
	}
	if c.Events.Timeout == 0 {
		c.Events.Timeout = d.Events.Timeout
	}
	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	if c.Events.Driver == "" {
		c.Events.Driver = EventsNone
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errs.ErrArgs.WrapMsg("http.addr cannot be empty")
	}
	if !strings.HasPrefix(c.HTTP.WSPath, "/") {
		return errs.ErrArgs.WrapMsg("http.ws_path must start with /", "ws_path", c.HTTP.WSPath)
	}
	if c.Hub.SendQueue < 1 {
		return errs.ErrArgs.WrapMsg("hub.send_queue must be at least 1")
	}
	if c.Hub.IdleTimeout < 0 {
		return errs.ErrArgs.WrapMsg("hub.idle_timeout cannot be negative")
	}
	if c.Node.Snowflake < 0 || c.Node.Snowflake > 1023 {
		return errs.ErrArgs.WrapMsg("node.snowflake out of range", "value", c.Node.Snowflake)
	}

	switch c.Auth.Mode {
	case AuthJWT:
		if c.Auth.Secret == "" {
			return errs.ErrArgs.WrapMsg("auth.secret is required in jwt mode (or HUB_JWT_SECRET)")
		}
	case AuthPlain:
	default:
		return errs.ErrArgs.WrapMsg("unknown auth.mode", "mode", c.Auth.Mode)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMongo:
		if c.Storage.Mongo.Database == "" {
			return errs.ErrArgs.WrapMsg("storage.mongo.database is required")
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return errs.ErrArgs.WrapMsg("storage.postgres.dsn is required (or DATABASE_URL)")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown storage.driver", "driver", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsNone:
	case EventsNats:
		if len(c.Events.Nats.Servers) == 0 {
			return errs.ErrArgs.WrapMsg("events.nats.servers is required")
		}
	case EventsKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return errs.ErrArgs.WrapMsg("events.kafka.brokers is required")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown events.driver", "driver", c.Events.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errs.ErrArgs.WrapMsg("redis.addr is required when redis is enabled")
	}
	return nil
}
