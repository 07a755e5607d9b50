package natsx

import (
	"context"

	"ChatHub/module/chat/model"
	"ChatHub/service/event"
	"ChatHub/tools/errs"

	"github.com/nats-io/nats.go"
)

// Publisher 把消息事件发到固定 subject
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	nodeID  string
}

func NewPublisher(cfg Config, nodeID string) (*Publisher, error) {
	nc, js, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	cfg.norm()
	return &Publisher{nc: nc, js: js, subject: cfg.Subject, nodeID: nodeID}, nil
}

func (p *Publisher) Publish(ctx context.Context, m *model.ChatMessage) error {
	msg, err := buildMsg(p.subject, p.nodeID, m)
	if err != nil {
		return err
	}
	if p.js != nil {
		if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return errs.ErrPublish.WrapMsg("jetstream", "subject", p.subject, "err", err)
		}
		return nil
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return errs.ErrPublish.WrapMsg("core", "subject", p.subject, "err", err)
	}
	return nil
}

// Close 先 flush 再断开
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// buildMsg 带 Nats-Msg-Id，JetStream 侧按 msg_id 去重
func buildMsg(subject, nodeID string, m *model.ChatMessage) (*nats.Msg, error) {
	data, key, err := event.Encode(nodeID, m)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, key)
	msg.Header.Set("Chat-Identify", m.ChatIdentify)
	return msg, nil
}
