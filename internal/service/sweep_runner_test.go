package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"model-sweep/internal/artifact"
	"model-sweep/internal/config"
	"model-sweep/internal/dataset"
	"model-sweep/internal/model"
	"model-sweep/internal/store"
	"model-sweep/internal/sweep"
	"model-sweep/internal/trainer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSaver struct {
	saved  []*sweep.Result
	status []string
	err    error
}

func (s *memSaver) Save(_ context.Context, res *sweep.Result, runErr error, meta store.SweepMeta) (*model.SweepRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, _, err := store.ToRecords(res, runErr, meta)
	if err != nil {
		return nil, err
	}
	s.saved = append(s.saved, res)
	s.status = append(s.status, row.Status)
	return row, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.EnvTrackingURI, "")
	t.Setenv(config.EnvPushgatewayURL, "")
	t.Setenv(config.EnvBestModelDir, "")
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Output.BestModelDir = filepath.Join(dir, "best_model")
	cfg.Output.ReportDir = filepath.Join(dir, "outputs")
	cfg.Sweep.Hyperparameters = []map[string]float64{
		{"n_estimators": 10, "max_depth": 1, "min_samples_split": 2},
		{"n_estimators": 10, "max_depth": 4, "min_samples_split": 2},
		{"n_estimators": 0},
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(cfg *config.Config, saver SweepSaver) *SweepRunner {
	return NewSweepRunner(cfg, trainer.RandomForest{RandomState: 42}, nil, nil,
		artifact.NewFileStore(cfg.Output.BestModelDir), saver, quietLogger())
}

func TestSweepRunner_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	saver := &memSaver{}

	out, err := newRunner(cfg, saver).Run(context.Background(), SweepRequest{})
	require.NoError(t, err)

	res := out.Result
	require.Len(t, res.Runs, 3)
	assert.Equal(t, sweep.RunStatusFailed, res.Runs[2].Status)
	assert.Equal(t, 1, res.Failed())
	assert.Greater(t, res.BestMetric, 0.5)

	// 只保存一个模型，文件名带最佳 run id
	require.Len(t, out.SavedModels, 1)
	assert.Equal(t, "best_model_"+res.BestRunID+".json", out.SavedModels[0])

	var forest trainer.Forest
	require.NoError(t, artifact.NewFileStore(cfg.Output.BestModelDir).Load(res.BestRunID, &forest))
	assert.Len(t, forest.Trees, 10)

	assert.FileExists(t, out.ResultPath)
	report, err := os.ReadFile(out.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), res.BestRunID)
	assert.Contains(t, string(report), "★")

	require.Len(t, saver.saved, 1)
	assert.Equal(t, []string{store.StatusCompleted}, saver.status)
}

func TestSweepRunner_SameSeedSameSelection(t *testing.T) {
	cfg := testConfig(t)
	a, err := newRunner(cfg, nil).Run(context.Background(), SweepRequest{})
	require.NoError(t, err)
	b, err := newRunner(cfg, nil).Run(context.Background(), SweepRequest{})
	require.NoError(t, err)

	assert.Equal(t, a.Result.BestIndex, b.Result.BestIndex)
	assert.Equal(t, a.Result.BestMetric, b.Result.BestMetric)
	assert.NotEqual(t, a.Result.SweepID, b.Result.SweepID)
}

func TestSweepRunner_AllFail(t *testing.T) {
	cfg := testConfig(t)
	saver := &memSaver{}

	out, err := newRunner(cfg, saver).Run(context.Background(), SweepRequest{
		Hyperparameters: []map[string]float64{{"n_estimators": 0}, {"max_depth": -1}},
	})
	require.ErrorIs(t, err, sweep.ErrNoSuccessfulRun)
	assert.True(t, IsNoSuccessfulRun(err))
	require.NotNil(t, out)
	assert.Empty(t, out.SavedModels)
	assert.NoDirExists(t, cfg.Output.BestModelDir)

	report, rerr := os.ReadFile(out.ReportPath)
	require.NoError(t, rerr)
	assert.True(t, strings.Contains(string(report), "无"))
	assert.Equal(t, []string{store.StatusNoSuccessfulRun}, saver.status)
}

func TestSweepRunner_SaverFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	out, err := newRunner(cfg, &memSaver{err: errors.New("db down")}).Run(context.Background(), SweepRequest{})
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "db down")
}

func TestSweepRunner_CSVDataset(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "data.csv")
	var b strings.Builder
	b.WriteString("x,y,label\n")
	for i := 0; i < 20; i++ {
		b.WriteString("0.1,0.2,neg\n5.1,5.2,pos\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	cfg.Dataset.Path = path

	out, err := newRunner(cfg, nil).Run(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Result.BestMetric)
	assert.Equal(t, 0, out.Result.BestIndex)

	report, err := os.ReadFile(out.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "- dataset: data (")
}

func TestSweepRunner_OversizedParamsFailOnlyThatRun(t *testing.T) {
	cfg := testConfig(t)
	out, err := newRunner(cfg, nil).Run(context.Background(), SweepRequest{
		Hyperparameters: []map[string]float64{
			{"n_estimators": 1e12},
			{"n_estimators": 5, "max_depth": 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, sweep.RunStatusFailed, out.Result.Runs[0].Status)
	assert.Contains(t, out.Result.Runs[0].Error, "n_estimators")
	assert.Equal(t, 1, out.Result.BestIndex)
}

func TestNewServiceContext_WithoutOptionalSinks(t *testing.T) {
	cfg := testConfig(t)
	svc := NewServiceContext(cfg, nil, quietLogger())
	require.NotNil(t, svc.SweepRunner)
	assert.Nil(t, svc.SweepStore)
	assert.Nil(t, svc.SweepRunner.recorder)
	assert.Nil(t, svc.SweepRunner.emitter)
	assert.Nil(t, svc.SweepRunner.saver)
}

// funcTrainer 每次调用返回 fn 的结果
type funcTrainer func(ctx context.Context, cfg sweep.Configuration) (sweep.Model, map[string]float64, error)

func (f funcTrainer) FitAndEvaluate(ctx context.Context, cfg sweep.Configuration, _ *dataset.Split) (sweep.Model, map[string]float64, error) {
	return f(ctx, cfg)
}

func TestSweepRunner_UnmarshalableResultIsReported(t *testing.T) {
	cfg := testConfig(t)
	tr := funcTrainer(func(context.Context, sweep.Configuration) (sweep.Model, map[string]float64, error) {
		return map[string]int{"trees": 1}, map[string]float64{"accuracy": 0.9, "loss": math.NaN()}, nil
	})
	runner := NewSweepRunner(cfg, tr, nil, nil, artifact.NewFileStore(cfg.Output.BestModelDir), nil, quietLogger())

	out, err := runner.Run(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Empty(t, out.ResultPath)
	assert.NotEmpty(t, out.ReportPath)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "marshal result failed")
}

func TestSweepRunner_CancelledSweepIsNotCompleted(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	tr := funcTrainer(func(ctx context.Context, _ sweep.Configuration) (sweep.Model, map[string]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		calls++
		cancel()
		return map[string]int{"trees": calls}, map[string]float64{"accuracy": 0.5}, nil
	})
	saver := &memSaver{}
	runner := NewSweepRunner(cfg, tr, nil, nil, artifact.NewFileStore(cfg.Output.BestModelDir), saver, quietLogger())

	out, err := runner.Run(ctx, SweepRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsNoSuccessfulRun(err))
	require.NotNil(t, out)
	assert.Empty(t, out.SavedModels)
	assert.NoDirExists(t, cfg.Output.BestModelDir)
	assert.Equal(t, []string{store.StatusCancelled}, saver.status)
}
