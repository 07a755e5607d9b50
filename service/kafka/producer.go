package kafka

import (
	"context"

	"ChatHub/module/chat/model"
	"ChatHub/service/event"
	"ChatHub/tools/errs"

	"github.com/Shopify/sarama"
)

// Publisher 同步生产者；key = 会话标识，同一会话的事件有序
type Publisher struct {
	client   sarama.Client
	producer sarama.SyncProducer
	topic    string
	nodeID   string
}

// NewPublisher 建 client -> （可选）建 topic -> 同步生产者
func NewPublisher(c Config, nodeID string) (*Publisher, error) {
	c.norm()
	if len(c.Brokers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("kafka brokers missing")
	}
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	if c.EnsureTopic {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, errs.WrapMsg(err, "kafka admin")
		}
		// admin 与 client 共享连接，这里不关 admin
		if err := EnsureTopic(admin, c); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka sync producer")
	}
	return &Publisher{client: client, producer: p, topic: c.Topic, nodeID: nodeID}, nil
}

// NewPublisherWithProducer 直接使用现成的生产者（单测注入 mocks）
func NewPublisherWithProducer(p sarama.SyncProducer, topic, nodeID string) *Publisher {
	return &Publisher{producer: p, topic: topic, nodeID: nodeID}
}

func (p *Publisher) Publish(ctx context.Context, m *model.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return errs.ErrPublish.WrapMsg("context done", "err", err)
	}
	pm, err := buildMessage(p.topic, p.nodeID, m)
	if err != nil {
		return err
	}
	if _, _, err := p.producer.SendMessage(pm); err != nil {
		return errs.ErrPublish.WrapMsg("kafka send", "topic", p.topic, "err", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	err := p.producer.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildMessage(topic, nodeID string, m *model.ChatMessage) (*sarama.ProducerMessage, error) {
	data, msgID, err := event.Encode(nodeID, m)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(m.ChatIdentify),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("msg_id"), Value: []byte(msgID)},
			{Key: []byte("event"), Value: []byte(event.MessageCreated)},
		},
	}, nil
}
