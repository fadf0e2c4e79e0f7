package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Tracking TrackingConfig `yaml:"tracking"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Output   OutputConfig   `yaml:"output"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// 为空时不落库
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

type SweepConfig struct {
	ExperimentName string `yaml:"experiment_name"`
	RunPrefix      string `yaml:"run_prefix"`
	// 模型随机种子（对应 random_state）
	RandomState int64 `yaml:"random_state"`
	// 有序的超参数列表；顺序决定并列时的优胜者
	Hyperparameters []map[string]float64 `yaml:"hyperparameters"`
}

type DatasetConfig struct {
	Name     string  `yaml:"name"`
	Path     string  `yaml:"path"`
	Seed     int64   `yaml:"seed"`
	TestSize float64 `yaml:"test_size"`
}

type TrackingConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

type MetricsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	PushgatewayURL string  `yaml:"pushgateway_url"`
	Job            string  `yaml:"job"`
	PushesPerSec   float64 `yaml:"pushes_per_sec"`
}

type OutputConfig struct {
	BestModelDir string `yaml:"best_model_dir"`
	ReportDir    string `yaml:"report_dir"`
}

const (
	EnvTrackingURI    = "MLFLOW_TRACKING_URI"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
	EnvBestModelDir   = "BEST_MODEL_DIR"

	DefaultTrackingURI    = "http://localhost:5000"
	DefaultPushgatewayURL = "http://localhost:9091"
	DefaultBestModelDir   = "best_model"
	DefaultDatasetName    = "iris"
)

// DefaultHyperparameters 默认的六组随机森林配置，按顺序训练
func DefaultHyperparameters() []map[string]float64 {
	return []map[string]float64{
		{"n_estimators": 50, "max_depth": 3, "min_samples_split": 2},
		{"n_estimators": 100, "max_depth": 5, "min_samples_split": 2},
		{"n_estimators": 150, "max_depth": 7, "min_samples_split": 2},
		{"n_estimators": 100, "max_depth": 5, "min_samples_split": 5},
		{"n_estimators": 200, "max_depth": 10, "min_samples_split": 2},
		{"n_estimators": 100, "max_depth": 3, "min_samples_split": 10},
	}
}

// DatasetName 记录到 run 参数里的数据集名；配置了 CSV 路径却沿用默认名时取文件名
func DatasetName(d DatasetConfig) string {
	if d.Path == "" {
		if d.Name == "" {
			return DefaultDatasetName
		}
		return d.Name
	}
	if d.Name == "" || d.Name == DefaultDatasetName {
		return strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	}
	return d.Name
}

// LoadConfig 读取 YAML 配置；文件不存在时使用默认值。环境变量优先级最高。
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config.applyDefaults()
	config.applyEnv(os.LookupEnv)
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Port <= 0 {
		c.Database.Port = 3306
	}

	if c.Sweep.ExperimentName == "" {
		c.Sweep.ExperimentName = "iris_classification"
	}
	if c.Sweep.RunPrefix == "" {
		c.Sweep.RunPrefix = "run"
	}
	if c.Sweep.RandomState == 0 {
		c.Sweep.RandomState = 42
	}
	if len(c.Sweep.Hyperparameters) == 0 {
		c.Sweep.Hyperparameters = DefaultHyperparameters()
	}

	if c.Dataset.Name == "" {
		c.Dataset.Name = DatasetName(c.Dataset)
	}
	if c.Dataset.Seed == 0 {
		c.Dataset.Seed = 42
	}
	if c.Dataset.TestSize <= 0 || c.Dataset.TestSize >= 1 {
		c.Dataset.TestSize = 0.2
	}

	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = DefaultTrackingURI
	}
	if c.Metrics.PushgatewayURL == "" {
		c.Metrics.PushgatewayURL = DefaultPushgatewayURL
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "mlflow_experiments"
	}
	if c.Metrics.PushesPerSec <= 0 {
		c.Metrics.PushesPerSec = 5
	}

	if c.Output.BestModelDir == "" {
		c.Output.BestModelDir = DefaultBestModelDir
	}
	if c.Output.ReportDir == "" {
		c.Output.ReportDir = "outputs"
	}
}

// applyEnv 环境变量覆盖：设置了端点即视为启用对应的旁路
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvTrackingURI); ok && v != "" {
		c.Tracking.BaseURL = v
		c.Tracking.Enabled = true
	}
	if v, ok := lookup(EnvPushgatewayURL); ok && v != "" {
		c.Metrics.PushgatewayURL = v
		c.Metrics.Enabled = true
	}
	if v, ok := lookup(EnvBestModelDir); ok && v != "" {
		c.Output.BestModelDir = v
	}
}
