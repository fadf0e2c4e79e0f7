package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"model-sweep/internal/sweep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"golang.org/x/time/rate"
)

// Pushgateway 把每个 run 的指标推送到 Prometheus PushGateway。
// 每个 run 一个分组（job + run_id），重复推送同一 run 会覆盖，不同 run 互不覆盖。
type Pushgateway struct {
	url     string
	limiter *rate.Limiter
	client  *http.Client
}

var _ sweep.Emitter = (*Pushgateway)(nil)

// NewPushgateway perSec 限制推送频率，避免对 gateway 造成突发压力
func NewPushgateway(url string, perSec float64) *Pushgateway {
	if perSec <= 0 {
		perSec = 5
	}
	return &Pushgateway{
		url:     strings.TrimRight(strings.TrimSpace(url), "/"),
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Pushgateway) Push(ctx context.Context, job, experiment, runID string, values map[string]float64) error {
	if p.url == "" {
		return fmt.Errorf("pushgateway url not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricName(name),
			Help: fmt.Sprintf("Model %s from MLflow", name),
		}, []string{"experiment"})
		if err := registry.Register(g); err != nil {
			return fmt.Errorf("register gauge %s: %w", name, err)
		}
		g.WithLabelValues(experiment).Set(values[name])
	}

	return push.New(p.url, job).
		Gatherer(registry).
		Grouping("run_id", runID).
		Client(p.client).
		PushContext(ctx)
}

// MetricName accuracy -> mlflow_accuracy；非法字符替换为下划线
func MetricName(name string) string {
	var b strings.Builder
	b.WriteString("mlflow_")
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
