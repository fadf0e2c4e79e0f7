package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvTrackingURI, "")
	t.Setenv(EnvPushgatewayURL, "")
	t.Setenv(EnvBestModelDir, "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "iris_classification", cfg.Sweep.ExperimentName)
	assert.Equal(t, DefaultHyperparameters(), cfg.Sweep.Hyperparameters)
	assert.Equal(t, 0.2, cfg.Dataset.TestSize)
	assert.Equal(t, int64(42), cfg.Dataset.Seed)
	assert.Equal(t, DefaultTrackingURI, cfg.Tracking.BaseURL)
	assert.Equal(t, DefaultPushgatewayURL, cfg.Metrics.PushgatewayURL)
	assert.Equal(t, DefaultBestModelDir, cfg.Output.BestModelDir)
	assert.False(t, cfg.Tracking.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_YAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
sweep:
  experiment_name: demo
  hyperparameters:
    - {n_estimators: 10, max_depth: 2, min_samples_split: 2}
dataset:
  test_size: 0.3
output:
  best_model_dir: /tmp/from-yaml
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv(EnvTrackingURI, "http://mlflow:5000")
	t.Setenv(EnvPushgatewayURL, "")
	t.Setenv(EnvBestModelDir, "/tmp/from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Sweep.ExperimentName)
	require.Len(t, cfg.Sweep.Hyperparameters, 1)
	assert.Equal(t, 2.0, cfg.Sweep.Hyperparameters[0]["max_depth"])
	assert.Equal(t, 0.3, cfg.Dataset.TestSize)
	assert.Equal(t, "http://mlflow:5000", cfg.Tracking.BaseURL)
	assert.True(t, cfg.Tracking.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/tmp/from-env", cfg.Output.BestModelDir)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep: [oops"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDatasetName(t *testing.T) {
	assert.Equal(t, "iris", DatasetName(DatasetConfig{}))
	assert.Equal(t, "iris", DatasetName(DatasetConfig{Name: "iris"}))
	assert.Equal(t, "wine", DatasetName(DatasetConfig{Name: "iris", Path: "data/wine.csv"}))
	assert.Equal(t, "wine", DatasetName(DatasetConfig{Path: "/tmp/wine.csv"}))
	assert.Equal(t, "my_wine", DatasetName(DatasetConfig{Name: "my_wine", Path: "data/wine.csv"}))
}
