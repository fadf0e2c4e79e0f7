package service

import (
	"log/slog"

	"model-sweep/internal/artifact"
	"model-sweep/internal/config"
	"model-sweep/internal/metrics"
	"model-sweep/internal/store"
	"model-sweep/internal/sweep"
	"model-sweep/internal/tracking"
	"model-sweep/internal/trainer"

	"gorm.io/gorm"
)

type ServiceContext struct {
	SweepRunner *SweepRunner
	// 未启用数据库时为 nil
	SweepStore *store.SweepStore
}

// NewServiceContext 按配置装配 sweep 的各个协作方；db 为 nil 时不落库
func NewServiceContext(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *ServiceContext {
	var recorder sweep.Recorder
	if cfg.Tracking.Enabled {
		recorder = tracking.NewMLflowClient(cfg.Tracking.BaseURL, cfg.Sweep.ExperimentName)
	}
	var emitter sweep.Emitter
	if cfg.Metrics.Enabled {
		emitter = metrics.NewPushgateway(cfg.Metrics.PushgatewayURL, cfg.Metrics.PushesPerSec)
	}

	svc := &ServiceContext{}
	var saver SweepSaver
	if db != nil {
		svc.SweepStore = store.NewSweepStore(db)
		saver = svc.SweepStore
	}

	svc.SweepRunner = NewSweepRunner(
		cfg,
		trainer.RandomForest{RandomState: cfg.Sweep.RandomState},
		recorder,
		emitter,
		artifact.NewFileStore(cfg.Output.BestModelDir),
		saver,
		logger,
	)
	return svc
}
