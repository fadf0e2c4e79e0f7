package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"model-sweep/internal/sweep"
)

func RenderSweepMarkdown(res *sweep.Result, runErr error, meta RunMeta) string {
	var b strings.Builder
	b.WriteString("# 超参数搜索结论\n\n")
	b.WriteString(fmt.Sprintf("- sweep_id: %s\n", res.SweepID))
	b.WriteString(fmt.Sprintf("- experiment: %s\n", res.ExperimentName))
	b.WriteString(fmt.Sprintf("- dataset: %s (seed=%d, test_size=%.2f)\n", meta.Dataset, meta.Seed, meta.TestSize))
	b.WriteString(fmt.Sprintf("- started_at: %s\n", res.StartedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- duration: %s\n\n", res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond)))

	b.WriteString("## 各配置结果\n\n")
	b.WriteString("| # | run_id | 参数 | 状态 | Accuracy | Loss |\n")
	b.WriteString("| ---: | --- | --- | --- | ---: | ---: |\n")
	for _, r := range res.Runs {
		acc, loss := "-", "-"
		if v, ok := r.Metrics[sweep.PrimaryMetric]; ok {
			acc = fmt.Sprintf("%.4f", v)
		}
		if v, ok := r.Metrics["loss"]; ok {
			loss = fmt.Sprintf("%.4f", v)
		}
		status := string(r.Status)
		if r.Best {
			status += " ★"
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
			r.Index+1, r.ID, formatParams(r.Params), status, acc, loss))
	}
	b.WriteString("\n")

	b.WriteString("## 最佳模型\n\n")
	switch {
	case runErr != nil && res.BestRunID == "":
		b.WriteString(fmt.Sprintf("- 无：%v\n", runErr))
	default:
		b.WriteString(fmt.Sprintf("- run_id: %s\n", res.BestRunID))
		b.WriteString(fmt.Sprintf("- accuracy: %.4f\n", res.BestMetric))
		if res.ArtifactPath != "" {
			b.WriteString(fmt.Sprintf("- artifact: %s\n", res.ArtifactPath))
		}
		if runErr != nil {
			b.WriteString(fmt.Sprintf("- 保存失败: %v\n", runErr))
		}
	}

	var problems []string
	for _, r := range res.Runs {
		if r.Error != "" {
			problems = append(problems, r.Error)
		}
		problems = append(problems, r.Warnings...)
	}
	if len(problems) > 0 {
		b.WriteString("\n## 执行错误/警告（如有）\n\n")
		max := len(problems)
		if max > 20 {
			max = 20
		}
		for i := 0; i < max; i++ {
			b.WriteString(fmt.Sprintf("- %s\n", problems[i]))
		}
		if len(problems) > max {
			b.WriteString(fmt.Sprintf("- ...(剩余 %d 条省略)\n", len(problems)-max))
		}
	}
	return b.String()
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, ", ")
}
