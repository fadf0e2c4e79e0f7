package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"model-sweep/internal/artifact"
	"model-sweep/internal/config"
	"model-sweep/internal/dataset"
	"model-sweep/internal/model"
	"model-sweep/internal/store"
	"model-sweep/internal/sweep"
)

// SweepRequest 覆盖配置文件中的部分参数；零值表示沿用配置
type SweepRequest struct {
	ExperimentName  string               `json:"experiment_name"`
	Hyperparameters []map[string]float64 `json:"hyperparameters"`
	Seed            int64                `json:"seed"`
	TestSize        float64              `json:"test_size"`
}

type RunMeta struct {
	Dataset  string
	Seed     int64
	TestSize float64
}

type SweepOutcome struct {
	Result     *sweep.Result `json:"result"`
	ResultPath string        `json:"result_path"`
	ReportPath string        `json:"report_path"`
	// 保存后校验：模型目录下的文件
	SavedModels []string `json:"saved_models"`
	Errors      []string `json:"errors"`
}

// SweepSaver 持久化 sweep 结果（数据库可选）
type SweepSaver interface {
	Save(ctx context.Context, res *sweep.Result, runErr error, meta store.SweepMeta) (*model.SweepRun, error)
}

type SweepRunner struct {
	cfg       *config.Config
	trainer   sweep.Trainer
	recorder  sweep.Recorder
	emitter   sweep.Emitter
	artifacts *artifact.FileStore
	saver     SweepSaver
	logger    *slog.Logger
}

func NewSweepRunner(cfg *config.Config, trainer sweep.Trainer, recorder sweep.Recorder, emitter sweep.Emitter,
	artifacts *artifact.FileStore, saver SweepSaver, logger *slog.Logger) *SweepRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepRunner{
		cfg:       cfg,
		trainer:   trainer,
		recorder:  recorder,
		emitter:   emitter,
		artifacts: artifacts,
		saver:     saver,
		logger:    logger,
	}
}

// Run 加载数据 -> 执行 sweep -> 写输出文件 -> 落库。
// 没有任何成功 run 时返回 sweep.ErrNoSuccessfulRun（outcome 仍然返回）。
func (r *SweepRunner) Run(ctx context.Context, req SweepRequest) (*SweepOutcome, error) {
	if req.ExperimentName == "" {
		req.ExperimentName = r.cfg.Sweep.ExperimentName
	}
	if len(req.Hyperparameters) == 0 {
		req.Hyperparameters = r.cfg.Sweep.Hyperparameters
	}
	if req.Seed == 0 {
		req.Seed = r.cfg.Dataset.Seed
	}
	if req.TestSize <= 0 || req.TestSize >= 1 {
		req.TestSize = r.cfg.Dataset.TestSize
	}
	meta := RunMeta{Dataset: config.DatasetName(r.cfg.Dataset), Seed: req.Seed, TestSize: req.TestSize}

	r.logger.Info("loading dataset", "dataset", meta.Dataset, "seed", meta.Seed)
	split, err := r.provider(req).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载数据集失败: %w", err)
	}
	r.logger.Info("dataset loaded", "train", len(split.TrainLabels), "test", len(split.TestLabels))

	ctrl := &sweep.Controller{
		Trainer:        r.trainer,
		Store:          r.artifacts,
		Recorder:       r.recorder,
		Emitter:        r.emitter,
		Logger:         r.logger,
		ExperimentName: req.ExperimentName,
		Job:            r.cfg.Metrics.Job,
		RunPrefix:      r.cfg.Sweep.RunPrefix,
		ExtraParams: map[string]string{
			"dataset":      meta.Dataset,
			"test_size":    strconv.FormatFloat(meta.TestSize, 'g', -1, 64),
			"random_state": strconv.FormatInt(r.cfg.Sweep.RandomState, 10),
		},
	}

	res, runErr := ctrl.Run(ctx, sweep.Configurations(req.Hyperparameters), split)
	if res == nil {
		return nil, runErr
	}

	out := &SweepOutcome{Result: res}
	r.writeOutputs(out, runErr, meta)

	if res.ArtifactPath != "" {
		if files, err := r.artifacts.List(); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("list %s failed: %v", r.artifacts.Dir, err))
		} else {
			out.SavedModels = files
			r.logger.Info("best model directory", "dir", r.artifacts.Dir, "files", files)
		}
	}

	if r.saver != nil {
		// 被取消的 sweep 也要落库，记录中断状态
		if _, err := r.saver.Save(context.WithoutCancel(ctx), res, runErr, store.SweepMeta{
			Dataset:    meta.Dataset,
			Seed:       meta.Seed,
			TestSize:   meta.TestSize,
			ReportPath: out.ReportPath,
		}); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("sweep=%s save failed: %v", res.SweepID, err))
			r.logger.Warn("failed to persist sweep", "sweep_id", res.SweepID, "error", err)
		}
	}
	return out, runErr
}

func (r *SweepRunner) provider(req SweepRequest) dataset.Provider {
	if r.cfg.Dataset.Path != "" {
		return dataset.CSV{Path: r.cfg.Dataset.Path, Seed: req.Seed, TestSize: req.TestSize}
	}
	return dataset.Iris{Seed: req.Seed, TestSize: req.TestSize}
}

// writeOutputs 输出 JSON 结果与 markdown 结论，失败只记录
func (r *SweepRunner) writeOutputs(out *SweepOutcome, runErr error, meta RunMeta) {
	dir := r.cfg.Output.ReportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("mkdir %s failed: %v", dir, err))
		return
	}
	res := out.Result
	resultPath := filepath.Join(dir, fmt.Sprintf("sweep_%s.json", res.SweepID))
	reportPath := filepath.Join(dir, fmt.Sprintf("sweep_%s.md", res.SweepID))

	if b, err := json.MarshalIndent(res, "", "  "); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("sweep=%s marshal result failed: %v", res.SweepID, err))
	} else if err := os.WriteFile(resultPath, b, 0o644); err != nil {
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.ResultPath = resultPath
	}
	if err := os.WriteFile(reportPath, []byte(RenderSweepMarkdown(res, runErr, meta)), 0o644); err != nil {
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.ReportPath = reportPath
	}
}

// IsNoSuccessfulRun 便于上层区分“全部失败”与其它错误
func IsNoSuccessfulRun(err error) bool {
	return errors.Is(err, sweep.ErrNoSuccessfulRun)
}
