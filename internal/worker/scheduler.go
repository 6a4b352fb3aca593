package worker

import (
	"context"
	"time"

	"ticket-transaction-engine/internal/cache"
	"ticket-transaction-engine/pkg/logger"

	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

// Scheduler 啟動時先跑一次，之後每個 interval 跑一次；lock 為 nil 時不做跨 replica 互斥
type Scheduler struct {
	name     string
	interval time.Duration
	lock     cache.SweepLock
	job      Job
}

func NewScheduler(name string, interval time.Duration, lock cache.SweepLock, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		lock:     lock,
		job:      job,
	}
}

// Start 在背景執行，ctx 取消後停止
func (s *Scheduler) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run 阻塞直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.WithComponent("scheduler").With(zap.String("job", s.name))
	log.Info("scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("scheduled job failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce 回傳 job 是否有執行 (沒搶到鎖時為 false)
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			logger.WithComponent("lock").Debug("lock held by another replica, skip run", zap.String("job", s.name))
			return false, nil
		}
		defer func() {
			// 用獨立的 ctx 釋放，避免 shutdown 時留下鎖直到 TTL
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := s.lock.Release(releaseCtx); err != nil {
				logger.WithComponent("lock").Warn("release lock failed", zap.String("job", s.name), zap.Error(err))
			}
		}()
	}

	return true, s.job(ctx)
}
