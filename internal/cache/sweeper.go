package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSweepInterval 是后台回收的默认周期。
const DefaultSweepInterval = time.Minute

// Sweeper 以后台任务的形式周期性回收过期资源，也允许请求路径通过 Trigger
// 异步唤醒一次回收。同一时刻只有 Run 所在的 goroutine 执行 Sweep。
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time
	kick     chan struct{}
}

// NewSweeper 构造回收任务；interval<=0 时使用 DefaultSweepInterval。
func NewSweeper(store Store, ttl, interval time.Duration, logger *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Trigger 请求一次额外的回收，不会阻塞调用方；已有待处理请求时直接合并。
func (s *Sweeper) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run 启动时立即回收一次，之后按 interval 或 Trigger 执行，直到 ctx 结束。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-s.kick:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一次回收并输出结构化日志，返回回收数量。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	started := s.now()
	count, err := s.store.Sweep(ctx, started, s.ttl)
	fields := logrus.Fields{
		"action":     "sweep",
		"reclaimed":  count,
		"ttl_ms":     s.ttl.Milliseconds(),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil && ctx.Err() == nil {
		s.logger.WithFields(fields).WithError(err).Warn("sweep_partial_failure")
		return count
	}
	if count > 0 {
		s.logger.WithFields(fields).Info("sweep_complete")
	} else {
		s.logger.WithFields(fields).Debug("sweep_complete")
	}
	return count
}
