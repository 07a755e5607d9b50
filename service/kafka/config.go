package kafka

import (
	"strings"
	"time"

	"ChatHub/tools/errs"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Version           string   `yaml:"version"`     // 例如 2.1.0
	Compression       string   `yaml:"compression"` // none/snappy/lz4/zstd
	Retries           int      `yaml:"retries"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
	EnsureTopic       bool     `yaml:"ensure_topic"`
}

func (c *Config) norm() {
	if c.Topic == "" {
		c.Topic = "chat.message.created"
	}
	if c.Retries <= 0 {
		c.Retries = 5
	}
	if c.Partitions <= 0 {
		c.Partitions = 8
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

// BuildBaseConfig 同步生产者配置：按 key 哈希分区，同一会话落同一分区保证顺序
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	c.norm()
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.ErrArgs.WrapMsg("kafka version", "version", c.Version)
		}
		cfg.Version = v
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.Retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
