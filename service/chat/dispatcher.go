package chat

import (
	"context"

	"ChatHub/logger"
	"ChatHub/tools/errs"

	"go.uber.org/zap"
)

type Dispatcher struct {
	handlers map[FrameType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameType]Handler)}
}

// Register 同一类型后注册的覆盖先注册的
func (d *Dispatcher) Register(hs ...Handler) {
	for _, h := range hs {
		d.handlers[h.Type()] = h
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *ChatContext, f Frame) error {
	h := d.GetHandler(f.Type())
	if h == nil {
		return errs.ErrArgs.WrapMsg("no handler", "type", f.Type())
	}
	return h.Handle(ctx, c, f)
}

func (d *Dispatcher) GetHandler(t FrameType) Handler {
	h, ok := d.handlers[t]
	if !ok {
		logger.Debug("[disp] no handler", zap.String("type", string(t)))
		return nil
	}
	return h
}
