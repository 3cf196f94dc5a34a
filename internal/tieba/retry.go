package tieba

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// RetryingClient 包装任意 Client：
//   - 抓取：仅重试瞬时错误，指数退避 + 抖动，封顶 30s
//   - 回帖：永不因超时重试（结果不明），见 ErrOutcomeUnknown
type RetryingClient struct {
	inner    Client
	attempts int
}

func NewRetryingClient(inner Client, attempts int) *RetryingClient {
	if attempts <= 0 {
		attempts = 5
	}
	return &RetryingClient{inner: inner, attempts: attempts}
}

func (c *RetryingClient) FetchThreadPage(ctx context.Context, forum string, pn, rn int) (*ThreadPage, error) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		page, err := c.inner.FetchThreadPage(ctx, forum, pn, rn)
		if err == nil {
			return page, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		wait := b.Duration()
		logger.Warn("fetch thread page failed, retrying",
			zap.String("forum", forum), zap.Int("pn", pn),
			zap.Int("attempt", attempt), zap.Int("attempts", c.attempts),
			zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("fetch thread page after %d attempts: %w", c.attempts, lastErr)
}

func (c *RetryingClient) AddPost(ctx context.Context, forum string, tid int64, content string) (*PostResult, error) {
	res, err := c.inner.AddPost(ctx, forum, tid, content)
	if err != nil {
		// 超时期间请求可能已送达，标记结果不明，交人工核对
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}
		return nil, err
	}
	return res, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
