package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"model-sweep/internal/sweep"
)

// MLflow REST API 2.0 文档参考：
// https://mlflow.org/docs/latest/rest-api.html

const (
	apiPrefix       = "/api/2.0/mlflow"
	artifactsPrefix = "/api/2.0/mlflow-artifacts/artifacts"

	modelArtifactPath = "model"
	modelFile         = "model.json"
)

var errNotFound = errors.New("mlflow resource does not exist")

// MLflowClient 通过 REST 接口记录 run；实现 sweep.Recorder。
// run id 由服务端分配，sweep 会采用该 id 作为模型文件名后缀。
type MLflowClient struct {
	baseURL    string
	experiment string
	http       *http.Client
	now        func() time.Time

	mu           sync.Mutex
	experimentID string
}

var _ sweep.Recorder = (*MLflowClient)(nil)

func NewMLflowClient(baseURL, experiment string) *MLflowClient {
	return &MLflowClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		experiment: experiment,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (c *MLflowClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type mlflowError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// EnsureExperiment 按名称获取实验，不存在则创建；结果缓存
func (c *MLflowClient) EnsureExperiment(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("mlflow disabled")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.experimentID != "" {
		return c.experimentID, nil
	}

	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.get(ctx, "/experiments/get-by-name", url.Values{"experiment_name": {c.experiment}}, &got)
	switch {
	case err == nil:
		c.experimentID = got.Experiment.ExperimentID
		return c.experimentID, nil
	case !errors.Is(err, errNotFound):
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.post(ctx, "/experiments/create", map[string]any{"name": c.experiment}, &created); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", c.experiment, err)
	}
	c.experimentID = created.ExperimentID
	return c.experimentID, nil
}

func (c *MLflowClient) BeginRun(ctx context.Context, runName string) (string, error) {
	expID, err := c.EnsureExperiment(ctx)
	if err != nil {
		return "", err
	}
	var resp struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	body := map[string]any{
		"experiment_id": expID,
		"run_name":      runName,
		"start_time":    c.now().UnixMilli(),
		"tags":          []keyValue{{Key: "mlflow.runName", Value: runName}},
	}
	if err := c.post(ctx, "/runs/create", body, &resp); err != nil {
		return "", err
	}
	if resp.Run.Info.RunID == "" {
		return "", fmt.Errorf("mlflow returned an empty run id")
	}
	return resp.Run.Info.RunID, nil
}

func (c *MLflowClient) LogParams(ctx context.Context, runID string, params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		kv = append(kv, keyValue{Key: k, Value: params[k]})
	}
	return c.post(ctx, "/runs/log-batch", map[string]any{"run_id": runID, "params": kv}, nil)
}

func (c *MLflowClient) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ts := c.now().UnixMilli()
	ms := make([]metric, 0, len(keys))
	for _, k := range keys {
		ms = append(ms, metric{Key: k, Value: metrics[k], Timestamp: ts})
	}
	return c.post(ctx, "/runs/log-batch", map[string]any{"run_id": runID, "metrics": ms}, nil)
}

// LogModel 把模型 JSON 上传到 run 的 artifacts/model/model.json，再写 log-model 历史 tag。
// 需要服务端以 --serve-artifacts 启动（mlflow server 默认开启）。
func (c *MLflowClient) LogModel(ctx context.Context, runID string, model sweep.Model) error {
	b, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("序列化模型失败: %w", err)
	}
	expID, err := c.EnsureExperiment(ctx)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/%s/%s/artifacts/%s/%s",
		url.PathEscape(expID), url.PathEscape(runID), modelArtifactPath, modelFile)
	if err := c.put(ctx, artifactsPrefix+path, b); err != nil {
		return fmt.Errorf("上传模型失败: %w", err)
	}

	history, _ := json.Marshal([]map[string]any{{
		"run_id":           runID,
		"artifact_path":    modelArtifactPath,
		"utc_time_created": c.now().UTC().Format("2006-01-02 15:04:05.000000"),
		"flavors": map[string]any{"go_random_forest": map[string]any{
			"data":       modelFile,
			"size_bytes": len(b),
		}},
	}})
	return c.post(ctx, "/runs/set-tag", map[string]any{
		"run_id": runID,
		"key":    "mlflow.log-model.history",
		"value":  string(history),
	}, nil)
}

func (c *MLflowClient) EndRun(ctx context.Context, runID string, status sweep.RunStatus) error {
	return c.post(ctx, "/runs/update", map[string]any{
		"run_id":   runID,
		"status":   string(status),
		"end_time": c.now().UnixMilli(),
	}, nil)
}

func (c *MLflowClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *MLflowClient) post(ctx context.Context, path string, body any, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("mlflow disabled")
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// put 直接上传原始字节，path 为完整路径（不带 apiPrefix）
func (c *MLflowClient) put(ctx context.Context, path string, body []byte) error {
	if !c.Enabled() {
		return fmt.Errorf("mlflow disabled")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *MLflowClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var me mlflowError
		_ = json.Unmarshal(raw, &me)
		if me.ErrorCode == "RESOURCE_DOES_NOT_EXIST" {
			return errNotFound
		}
		return fmt.Errorf("mlflow http=%d code=%s body=%s", resp.StatusCode, me.ErrorCode, truncate(string(raw), 300))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析 mlflow 响应失败: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
