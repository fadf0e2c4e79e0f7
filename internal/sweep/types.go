package sweep

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"model-sweep/internal/dataset"
)

// PrimaryMetric 选择最佳模型所用的指标
const PrimaryMetric = "accuracy"

// Configuration 一组不可变的超参数，身份即其在列表中的位置
type Configuration struct {
	params map[string]float64
}

func NewConfiguration(params map[string]float64) Configuration {
	cp := make(map[string]float64, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Configuration{params: cp}
}

// Configurations 从配置文件中的有序列表构造
func Configurations(list []map[string]float64) []Configuration {
	out := make([]Configuration, len(list))
	for i, p := range list {
		out[i] = NewConfiguration(p)
	}
	return out
}

func (c Configuration) Get(name string) (float64, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Params 返回副本
func (c Configuration) Params() map[string]float64 {
	cp := make(map[string]float64, len(c.params))
	for k, v := range c.params {
		cp[k] = v
	}
	return cp
}

func (c Configuration) Names() []string {
	names := make([]string, 0, len(c.params))
	for k := range c.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c Configuration) String() string {
	parts := make([]string, 0, len(c.params))
	for _, k := range c.Names() {
		parts = append(parts, k+"="+formatParam(c.params[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Model 训练产物的不透明句柄。若实现 io.Closer，被淘汰时会被 Close。
type Model = any

type RunStatus string

const (
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// Run 一次训练+评估
type Run struct {
	ID            string             `json:"run_id"`
	Index         int                `json:"index"`
	Configuration Configuration      `json:"-"`
	Params        map[string]float64 `json:"params"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	Status        RunStatus          `json:"status"`
	Error         string             `json:"error,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       time.Time          `json:"ended_at"`
	Best          bool               `json:"best"`
}

func (r *Run) Succeeded() bool { return r.Status == RunStatusFinished }

// Result 一次 sweep 的结果
type Result struct {
	SweepID        string    `json:"sweep_id"`
	ExperimentName string    `json:"experiment_name"`
	BestRunID      string    `json:"best_run_id"`
	BestIndex      int       `json:"best_index"`
	BestMetric     float64   `json:"best_metric"`
	ArtifactPath   string    `json:"artifact_path"`
	Runs           []*Run    `json:"runs"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// Failed 失败的 run 数
func (r *Result) Failed() int {
	n := 0
	for _, run := range r.Runs {
		if !run.Succeeded() {
			n++
		}
	}
	return n
}

// Trainer 给定配置与数据划分，返回模型与指标
type Trainer interface {
	FitAndEvaluate(ctx context.Context, cfg Configuration, split *dataset.Split) (Model, map[string]float64, error)
}

// Recorder 可选的实验记录旁路（例如 MLflow）。任何调用失败都不影响 sweep。
type Recorder interface {
	// BeginRun 返回外部分配的 run id；返回空串表示沿用本地生成的 id
	BeginRun(ctx context.Context, runName string) (string, error)
	LogParams(ctx context.Context, runID string, params map[string]string) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	LogModel(ctx context.Context, runID string, model Model) error
	EndRun(ctx context.Context, runID string, status RunStatus) error
}

// Emitter 可选的指标推送旁路（例如 Prometheus PushGateway）
type Emitter interface {
	Push(ctx context.Context, job, experiment, runID string, metrics map[string]float64) error
}

// ArtifactStore 保存最终的最佳模型
type ArtifactStore interface {
	Save(model Model, suffix string) (string, error)
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func describe(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
