package safe

import (
	"ChatHub/logger"
	"ChatHub/tools/errs"

	"go.uber.org/zap"
)

// Go 启动一个带 recover 的 goroutine，panic 只记录日志，不拖垮整个进程
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover 需直接 defer 调用
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[safe] panic recovered",
			zap.String("task", name),
			zap.Error(errs.ErrPanic(r)),
			zap.Stack("stack"))
	}
}

// DefaultString returns the value or the fallback when it is empty.
func DefaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
