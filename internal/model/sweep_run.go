package model

import (
	"time"

	"gorm.io/gorm"
)

// SweepRun 每次 sweep 的元数据（可复现：记录种子、数据集与最佳结果）
type SweepRun struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SweepID        string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"sweep_id"`
	ExperimentName string  `gorm:"type:varchar(200);index" json:"experiment_name"`
	Dataset        string  `gorm:"type:varchar(100)" json:"dataset"`
	Seed           int64   `json:"seed"`
	TestSize       float64 `json:"test_size"`
	NumConfigs     int     `json:"num_configs"`
	NumFailed      int     `json:"num_failed"`
	// 状态：completed / no_successful_run / save_failed / cancelled
	Status string `gorm:"type:varchar(32);index" json:"status"`

	BestRunID    string  `gorm:"type:varchar(200);index" json:"best_run_id"`
	BestIndex    int     `json:"best_index"`
	BestAccuracy float64 `json:"best_accuracy"`
	ArtifactPath string  `gorm:"type:varchar(500)" json:"artifact_path"`
	ReportPath   string  `gorm:"type:varchar(500)" json:"report_path"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
