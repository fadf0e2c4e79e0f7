package model

import (
	"time"

	"gorm.io/gorm"
)

// RunRecord sweep 中单个配置的一次训练评估
type RunRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SweepID string `gorm:"type:varchar(64);not null;index" json:"sweep_id"`
	RunID   string `gorm:"type:varchar(200);not null;index" json:"run_id"`
	// 配置在列表中的位置（从 0 开始）
	Position int    `json:"position"`
	Status   string `gorm:"type:varchar(20);index" json:"status"`
	IsBest   bool   `gorm:"default:false" json:"is_best"`

	Accuracy *float64 `json:"accuracy"`
	Loss     *float64 `json:"loss"`

	ParamsJSON   string `gorm:"type:text" json:"params_json"`
	MetricsJSON  string `gorm:"type:text" json:"metrics_json"`
	Error        string `gorm:"type:text" json:"error"`
	WarningsJSON string `gorm:"type:text" json:"warnings_json"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
