package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"model-sweep/internal/config"
	"model-sweep/internal/db"
	"model-sweep/internal/router"
	"model-sweep/internal/service"

	_ "go.uber.org/automaxprocs"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	serve := flag.Bool("serve", false, "启动 HTTP 服务，而不是执行一次 sweep 后退出")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库（可选）
	var gdb *gorm.DB
	if cfg.Database.Enabled {
		if err := db.InitDB(cfg); err != nil {
			log.Fatalf("初始化数据库失败: %v", err)
		}
		gdb = db.DB
	}

	// 初始化服务
	svcCtx := service.NewServiceContext(cfg, gdb, logger)

	if *serve {
		r := router.SetupRouter(svcCtx)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("服务启动", "addr", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("启动服务失败: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(runOnce(ctx, svcCtx.SweepRunner, logger))
}

// runOnce 执行一次 sweep，返回进程退出码
func runOnce(ctx context.Context, runner *service.SweepRunner, logger *slog.Logger) int {
	outcome, err := runner.Run(ctx, service.SweepRequest{})
	if service.IsNoSuccessfulRun(err) {
		logger.Error("sweep 结束：没有成功的 run", "error", err)
		return 1
	}
	if err != nil {
		logger.Error("sweep 失败", "error", err)
		return 1
	}

	res := outcome.Result
	logger.Info("sweep 完成",
		"sweep_id", res.SweepID,
		"best_run_id", res.BestRunID,
		"best_accuracy", res.BestMetric,
		"artifact", res.ArtifactPath,
		"failed_runs", res.Failed(),
	)
	for _, e := range outcome.Errors {
		logger.Warn("输出阶段错误", "error", e)
	}
	return 0
}
