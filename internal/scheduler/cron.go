package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job 定时执行的任务
type Job interface {
	Run(ctx context.Context) (RunResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	job     Job
	spec    string
	logger  *slog.Logger
	entryID cron.EntryID

	// 同一时刻只允许一次运行,手动触发与定时触发共用
	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(job Job, spec string, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		job:    job,
		spec:   spec,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.spec, func() {
		s.logger.Debug("cron tick", "spec", s.spec)
		if _, err := s.RunNow(s.ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "next_run", s.GetNextRunTime())
	return nil
}

// RunNow 立即执行一次任务,等待正在进行的运行结束
func (s *Scheduler) RunNow(ctx context.Context) (RunResult, error) {
	s.running.Lock()
	defer s.running.Unlock()
	return s.job.Run(ctx)
}

// GetNextRunTime 获取下次运行时间
func (s *Scheduler) GetNextRunTime() time.Time {
	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// Stop 停止调度并等待正在执行的任务
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
}
