package tieba

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrOutcomeUnknown 发帖超时：请求可能已送达，结果不明。
// 调用方不得自动重试，否则可能重复发帖
var ErrOutcomeUnknown = errors.New("post outcome unknown (timeout)")

// ProtocolError 远端业务错误。Retryable=false 的错误（鉴权失败、参数校验）
// 立即中止，不重试
type ProtocolError struct {
	Code      int
	Msg       string
	Retryable bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tieba protocol error %d: %s", e.Code, e.Msg)
}

// IsRetryable 传输层瞬时错误（超时、连接失败）与标记为可重试的协议错误
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
