package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"model-sweep/internal/config"
	"model-sweep/internal/db"
	"model-sweep/internal/sweep"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *sweep.Result {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &sweep.Result{
		SweepID:        uuid.NewString(),
		ExperimentName: "iris_classification",
		BestRunID:      "run_2_120000_000000",
		BestIndex:      1,
		BestMetric:     0.95,
		ArtifactPath:   "best_model/best_model_run_2_120000_000000.json",
		StartedAt:      t0,
		EndedAt:        t0.Add(time.Second),
		Runs: []*sweep.Run{
			{ID: "run_1_120000_000000", Index: 0, Status: sweep.RunStatusFailed, Error: "boom",
				Params: map[string]float64{"max_depth": 3}},
			{ID: "run_2_120000_000000", Index: 1, Status: sweep.RunStatusFinished, Best: true,
				Params:   map[string]float64{"max_depth": 5},
				Metrics:  map[string]float64{"accuracy": 0.95, "loss": 0.12},
				Warnings: []string{"run run_2 metrics push failed: timeout"}},
		},
	}
}

func TestToRecords(t *testing.T) {
	res := sampleResult()
	row, runs, err := ToRecords(res, nil, SweepMeta{Dataset: "iris", Seed: 42, TestSize: 0.2})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, row.Status)
	assert.Equal(t, 2, row.NumConfigs)
	assert.Equal(t, 1, row.NumFailed)
	assert.Equal(t, 0.95, row.BestAccuracy)
	assert.Equal(t, "iris", row.Dataset)

	require.Len(t, runs, 2)
	assert.Nil(t, runs[0].Accuracy)
	assert.Equal(t, "boom", runs[0].Error)
	assert.JSONEq(t, `{"max_depth":3}`, runs[0].ParamsJSON)

	require.NotNil(t, runs[1].Accuracy)
	assert.Equal(t, 0.95, *runs[1].Accuracy)
	assert.Equal(t, 0.12, *runs[1].Loss)
	assert.True(t, runs[1].IsBest)
	assert.Contains(t, runs[1].WarningsJSON, "metrics push failed")
}

func TestToRecords_Status(t *testing.T) {
	row, _, err := ToRecords(sampleResult(), sweep.ErrNoSuccessfulRun, SweepMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoSuccessfulRun, row.Status)

	row, _, err = ToRecords(sampleResult(), fmt.Errorf("sweep 被中断: %w", context.Canceled), SweepMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, row.Status)

	row, _, err = ToRecords(sampleResult(), errors.New("disk full"), SweepMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusSaveFailed, row.Status)

	_, _, err = ToRecords(nil, nil, SweepMeta{})
	assert.Error(t, err)
}

// TestSweepStore_Integration 需要真实的 MySQL 连接
func TestSweepStore_Integration(t *testing.T) {
	cfg, err := config.LoadConfig("../../config/config.yaml")
	if err != nil || !cfg.Database.Enabled {
		t.Skip("跳过集成测试：未配置数据库（config/config.yaml 中 database.enabled）")
		return
	}
	if err := db.InitDB(cfg); err != nil {
		t.Skip("跳过集成测试：无法连接数据库")
		return
	}

	s := NewSweepStore(db.DB)
	ctx := context.Background()
	res := sampleResult()

	_, err = s.Save(ctx, res, nil, SweepMeta{Dataset: "iris", Seed: 42, TestSize: 0.2})
	require.NoError(t, err)

	row, runs, err := s.Get(ctx, res.SweepID)
	require.NoError(t, err)
	assert.Equal(t, res.BestRunID, row.BestRunID)
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].Position)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, _, err = s.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrSweepNotFound)
}
