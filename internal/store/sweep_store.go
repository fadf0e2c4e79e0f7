package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"model-sweep/internal/model"
	"model-sweep/internal/sweep"

	"gorm.io/gorm"
)

var ErrSweepNotFound = errors.New("sweep not found")

const (
	StatusCompleted       = "completed"
	StatusNoSuccessfulRun = "no_successful_run"
	StatusSaveFailed      = "save_failed"
	StatusCancelled       = "cancelled"
)

// SweepMeta 与 sweep 结果一起落库的数据集信息
type SweepMeta struct {
	Dataset    string
	Seed       int64
	TestSize   float64
	ReportPath string
}

// SweepStore 用 gorm 持久化 sweep 与每个 run
type SweepStore struct {
	db *gorm.DB
}

func NewSweepStore(db *gorm.DB) *SweepStore {
	return &SweepStore{db: db}
}

// Save 在一个事务里写入 sweep 及其全部 run
func (s *SweepStore) Save(ctx context.Context, res *sweep.Result, runErr error, meta SweepMeta) (*model.SweepRun, error) {
	row, runs, err := ToRecords(res, runErr, meta)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("写入 sweep 失败: %w", err)
		}
		if len(runs) == 0 {
			return nil
		}
		if err := tx.Create(&runs).Error; err != nil {
			return fmt.Errorf("写入 run 失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *SweepStore) List(ctx context.Context, limit int) ([]model.SweepRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []model.SweepRun
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SweepStore) Get(ctx context.Context, sweepID string) (*model.SweepRun, []model.RunRecord, error) {
	var row model.SweepRun
	err := s.db.WithContext(ctx).Where("sweep_id = ?", sweepID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSweepNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var runs []model.RunRecord
	if err := s.db.WithContext(ctx).Where("sweep_id = ?", sweepID).Order("position ASC").Find(&runs).Error; err != nil {
		return nil, nil, err
	}
	return &row, runs, nil
}

// ToRecords 把 sweep 结果转换成表记录
func ToRecords(res *sweep.Result, runErr error, meta SweepMeta) (*model.SweepRun, []model.RunRecord, error) {
	if res == nil {
		return nil, nil, errors.New("nil sweep result")
	}
	status := StatusCompleted
	switch {
	case errors.Is(runErr, sweep.ErrNoSuccessfulRun):
		status = StatusNoSuccessfulRun
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = StatusCancelled
	case runErr != nil:
		status = StatusSaveFailed
	}

	row := &model.SweepRun{
		SweepID:        res.SweepID,
		ExperimentName: res.ExperimentName,
		Dataset:        meta.Dataset,
		Seed:           meta.Seed,
		TestSize:       meta.TestSize,
		NumConfigs:     len(res.Runs),
		NumFailed:      res.Failed(),
		Status:         status,
		BestRunID:      res.BestRunID,
		BestIndex:      res.BestIndex,
		BestAccuracy:   res.BestMetric,
		ArtifactPath:   res.ArtifactPath,
		ReportPath:     meta.ReportPath,
		StartedAt:      res.StartedAt,
		EndedAt:        res.EndedAt,
	}

	runs := make([]model.RunRecord, 0, len(res.Runs))
	for _, r := range res.Runs {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return nil, nil, err
		}
		metrics, err := json.Marshal(r.Metrics)
		if err != nil {
			return nil, nil, err
		}
		warnings, _ := json.Marshal(r.Warnings)

		rec := model.RunRecord{
			SweepID:      res.SweepID,
			RunID:        r.ID,
			Position:     r.Index,
			Status:       string(r.Status),
			IsBest:       r.Best,
			ParamsJSON:   string(params),
			MetricsJSON:  string(metrics),
			Error:        r.Error,
			WarningsJSON: string(warnings),
			StartedAt:    r.StartedAt,
			EndedAt:      r.EndedAt,
		}
		if v, ok := r.Metrics[sweep.PrimaryMetric]; ok {
			rec.Accuracy = &v
		}
		if v, ok := r.Metrics["loss"]; ok {
			rec.Loss = &v
		}
		runs = append(runs, rec)
	}
	return row, runs, nil
}
