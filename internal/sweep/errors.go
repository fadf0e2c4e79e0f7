package sweep

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuccessfulRun 所有配置都失败，唯一会越过 sweep 边界的错误
	ErrNoSuccessfulRun  = errors.New("no run completed successfully")
	ErrNoConfigurations = errors.New("no configurations to sweep")
)

// TrainingError 单个配置训练/评估失败
type TrainingError struct {
	RunID string
	Index int
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("run %s (config #%d) training failed: %v", e.RunID, e.Index+1, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// TrackingError 实验记录调用失败
type TrackingError struct {
	RunID string
	Op    string
	Err   error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("run %s tracking %s failed: %v", e.RunID, e.Op, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }

// MetricsPushError 指标推送失败
type MetricsPushError struct {
	RunID string
	Err   error
}

func (e *MetricsPushError) Error() string {
	return fmt.Sprintf("run %s metrics push failed: %v", e.RunID, e.Err)
}

func (e *MetricsPushError) Unwrap() error { return e.Err }
