package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"model-sweep/internal/dataset"

	"github.com/google/uuid"
)

// Controller 按顺序训练每个配置、评估并保留唯一的最佳模型。
// 每次 Run 都使用独立的 Tracker，同一进程内可以并发跑多个 sweep。
type Controller struct {
	Trainer  Trainer
	Store    ArtifactStore
	Recorder Recorder // 可选
	Emitter  Emitter  // 可选
	Logger   *slog.Logger

	ExperimentName string
	Job            string
	RunPrefix      string
	// ExtraParams 每个 run 额外记录的参数（dataset/test_size/random_state 等）
	ExtraParams map[string]string
	Now         func() time.Time
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run 执行一次完整的 sweep。
// 只有所有配置都失败时返回 ErrNoSuccessfulRun（Result 仍会返回，便于报告）；
// 单个配置的训练失败、记录/推送失败都只记为警告。
func (c *Controller) Run(ctx context.Context, configs []Configuration, split *dataset.Split) (*Result, error) {
	if len(configs) == 0 {
		return nil, ErrNoConfigurations
	}
	log := c.logger()

	result := &Result{
		SweepID:        uuid.NewString(),
		ExperimentName: c.ExperimentName,
		BestIndex:      -1,
		Runs:           make([]*Run, 0, len(configs)),
		StartedAt:      c.now(),
	}
	ids := &RunIDs{Prefix: c.RunPrefix, Scope: result.SweepID[:runIDScopeLen], Now: c.Now}
	tracker := NewTracker(0)

	log.Info("sweep started", "sweep_id", result.SweepID, "experiment", c.ExperimentName, "configs", len(configs))

	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return c.abort(log, result, tracker, err)
		}
		run := c.runOne(ctx, log, ids.Next(), i, len(configs), cfg, split, tracker)
		result.Runs = append(result.Runs, run)
	}
	// 被取消时后续配置都会失败，此时的“最佳”不是全部配置中的最大值
	if err := ctx.Err(); err != nil {
		return c.abort(log, result, tracker, err)
	}
	result.EndedAt = c.now()

	if !tracker.Holding() {
		log.Error("no model was trained successfully", "sweep_id", result.SweepID, "failed", result.Failed())
		return result, ErrNoSuccessfulRun
	}

	result.BestRunID = tracker.RunID()
	result.BestIndex = tracker.Index()
	result.BestMetric = tracker.Metric()
	result.Runs[result.BestIndex].Best = true

	path, err := c.Store.Save(tracker.Take(), result.BestRunID)
	if err != nil {
		return result, fmt.Errorf("保存最佳模型失败: %w", err)
	}
	result.ArtifactPath = path

	log.Info("sweep completed",
		"sweep_id", result.SweepID,
		"best_run_id", result.BestRunID,
		"best_accuracy", result.BestMetric,
		"artifact", path,
		"failed", result.Failed())
	return result, nil
}

// abort 丢弃已持有的模型，不调用 Store
func (c *Controller) abort(log *slog.Logger, result *Result, tracker *Tracker, cause error) (*Result, error) {
	result.EndedAt = c.now()
	release(tracker.Take())
	log.Warn("sweep interrupted, best model not saved",
		"sweep_id", result.SweepID, "completed", len(result.Runs), "error", cause)
	return result, fmt.Errorf("sweep 被中断: %w", cause)
}

func (c *Controller) runOne(ctx context.Context, log *slog.Logger, localID string, i, total int,
	cfg Configuration, split *dataset.Split, tracker *Tracker) *Run {
	run := &Run{
		ID:            localID,
		Index:         i,
		Configuration: cfg,
		Params:        cfg.Params(),
		StartedAt:     c.now(),
	}
	defer func() { run.EndedAt = c.now() }()

	recording := false
	if c.Recorder != nil {
		var extID string
		err := guard(func() (err error) {
			extID, err = c.Recorder.BeginRun(ctx, localID)
			return err
		})
		if err != nil {
			c.warn(log, run, &TrackingError{RunID: run.ID, Op: "begin_run", Err: err})
		} else {
			recording = true
			if extID != "" {
				run.ID = extID
			}
		}
	}
	log.Info("starting run", "run", fmt.Sprintf("%d/%d", i+1, total), "run_id", run.ID, "params", cfg.String())

	if recording {
		if err := guard(func() error { return c.Recorder.LogParams(ctx, run.ID, c.params(run)) }); err != nil {
			c.warn(log, run, &TrackingError{RunID: run.ID, Op: "log_params", Err: err})
		}
	}

	model, metrics, err := c.fit(ctx, cfg, split)
	if err == nil {
		if _, ok := metrics[PrimaryMetric]; !ok {
			release(model)
			err = fmt.Errorf("trainer reported no %q metric", PrimaryMetric)
		}
	}
	if err != nil {
		terr := &TrainingError{RunID: run.ID, Index: i, Err: err}
		run.Status = RunStatusFailed
		run.Error = describe(terr)
		log.Warn("run failed, continuing sweep", "run_id", run.ID, "error", terr)
		if recording {
			if err := guard(func() error { return c.Recorder.EndRun(ctx, run.ID, RunStatusFailed) }); err != nil {
				c.warn(log, run, &TrackingError{RunID: run.ID, Op: "end_run", Err: err})
			}
		}
		return run
	}

	run.Status = RunStatusFinished
	run.Metrics = metrics
	log.Info("model trained", "run_id", run.ID, "accuracy", metrics[PrimaryMetric], "loss", metrics["loss"])

	if recording {
		if err := guard(func() error { return c.Recorder.LogMetrics(ctx, run.ID, metrics) }); err != nil {
			c.warn(log, run, &TrackingError{RunID: run.ID, Op: "log_metrics", Err: err})
		}
		if err := guard(func() error { return c.Recorder.LogModel(ctx, run.ID, model) }); err != nil {
			c.warn(log, run, &TrackingError{RunID: run.ID, Op: "log_model", Err: err})
		}
	}
	if c.Emitter != nil {
		if err := guard(func() error { return c.Emitter.Push(ctx, c.Job, c.ExperimentName, run.ID, metrics) }); err != nil {
			c.warn(log, run, &MetricsPushError{RunID: run.ID, Err: err})
		} else {
			log.Info("metrics pushed", "run_id", run.ID)
		}
	}
	if recording {
		if err := guard(func() error { return c.Recorder.EndRun(ctx, run.ID, RunStatusFinished) }); err != nil {
			c.warn(log, run, &TrackingError{RunID: run.ID, Op: "end_run", Err: err})
		}
	}

	prev := tracker.Metric()
	if tracker.Offer(run.ID, i, metrics[PrimaryMetric], model) {
		log.Info("new best model", "run_id", run.ID, "accuracy", metrics[PrimaryMetric])
	} else {
		log.Info("model not better than current best", "run_id", run.ID, "best_accuracy", prev)
	}
	return run
}

// fit 调用 Trainer，panic 也视为该配置的训练失败
func (c *Controller) fit(ctx context.Context, cfg Configuration, split *dataset.Split) (m Model, metrics map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, metrics, err = nil, nil, fmt.Errorf("trainer panic: %v", r)
		}
	}()
	return c.Trainer.FitAndEvaluate(ctx, cfg, split)
}

// guard 旁路调用（记录/推送）的 panic 转成普通错误
func guard(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return call()
}

func (c *Controller) params(run *Run) map[string]string {
	out := make(map[string]string, len(run.Params)+len(c.ExtraParams)+2)
	for k, v := range run.Params {
		out[k] = formatParam(v)
	}
	for k, v := range c.ExtraParams {
		out[k] = v
	}
	out["run_number"] = strconv.Itoa(run.Index + 1)
	out["timestamp"] = run.StartedAt.Format(time.RFC3339Nano)
	return out
}

func (c *Controller) warn(log *slog.Logger, run *Run, err error) {
	run.Warnings = append(run.Warnings, err.Error())
	log.Warn("best-effort call failed", "run_id", run.ID, "error", err)
}
