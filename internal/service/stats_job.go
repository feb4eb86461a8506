package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"runquest/internal/observability"

	"github.com/robfig/cron/v3"
)

// 标准 5 段 cron 表达式（分 时 日 月 周）
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StatsJob 定时刷新 runs_active 指标
type StatsJob struct {
	stats   *StatsService
	metrics *observability.Metrics
	cron    *cron.Cron
}

func NewStatsJob(stats *StatsService, metrics *observability.Metrics, expr string) (*StatsJob, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("解析 cron 表达式失败 %q: %w", expr, err)
	}

	j := &StatsJob{
		stats:   stats,
		metrics: metrics,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
	j.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		j.Refresh(ctx)
	}))
	return j, nil
}

// Refresh 立即执行一次
func (j *StatsJob) Refresh(ctx context.Context) {
	n, err := j.stats.ActiveRuns(ctx)
	if err != nil {
		slog.WarnContext(ctx, "刷新活跃 run 统计失败", "err", err)
		return
	}
	j.metrics.SetActiveRuns(n)
	slog.DebugContext(ctx, "活跃 run 统计已刷新", "active", n)
}

// Run 阻塞直到 ctx 取消，退出前等待正在执行的任务结束
func (j *StatsJob) Run(ctx context.Context) error {
	j.Refresh(ctx)
	j.cron.Start()
	<-ctx.Done()
	<-j.cron.Stop().Done()
	return nil
}
