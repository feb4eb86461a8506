package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"runquest/internal/db"
	"runquest/internal/objectstore"
	"runquest/internal/observability"
	"runquest/internal/router"
	"runquest/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	// 加载配置
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("关闭追踪失败", "err", err)
		}
	}()

	// 初始化数据库
	gdb, err := db.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer db.Close(gdb)

	store, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("初始化对象存储失败: %w", err)
	}
	defer store.Close()

	// 初始化服务
	metrics := observability.NewMetrics()
	svcCtx := service.NewServiceContext(cfg, gdb, store, metrics)

	// cron 表达式有误时在监听端口之前退出
	var job *service.StatsJob
	if cfg.Stats.RefreshCron != "" {
		job, err = service.NewStatsJob(svcCtx.Stats, metrics, cfg.Stats.RefreshCron)
		if err != nil {
			return err
		}
	}

	var opts router.Options
	if local, ok := store.(*objectstore.Local); ok {
		opts.ProofDir = local.Dir()
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router.SetupRouter(svcCtx, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("服务启动", "addr", srv.Addr, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("正在关闭服务")
		return srv.Shutdown(sctx)
	})
	if job != nil {
		g.Go(func() error { return job.Run(gctx) })
	}

	return g.Wait()
}
