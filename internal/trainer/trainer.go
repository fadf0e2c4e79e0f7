package trainer

import (
	"context"
	"fmt"
	"math"

	"model-sweep/internal/dataset"
	"model-sweep/internal/sweep"
)

// RandomForest 把 sweep.Configuration 映射成森林参数并训练、评估
type RandomForest struct {
	RandomState int64
}

var _ sweep.Trainer = RandomForest{}

func (t RandomForest) FitAndEvaluate(ctx context.Context, cfg sweep.Configuration, split *dataset.Split) (sweep.Model, map[string]float64, error) {
	p, err := ParamsFrom(cfg, t.RandomState)
	if err != nil {
		return nil, nil, err
	}
	forest, err := Fit(ctx, p, split.TrainFeatures, split.TrainLabels, split.NumClasses)
	if err != nil {
		return nil, nil, err
	}

	proba := forest.PredictProba(split.TestFeatures)
	return forest, map[string]float64{
		"accuracy": Accuracy(split.TestLabels, forest.Predict(split.TestFeatures)),
		"loss":     LogLoss(split.TestLabels, proba),
	}, nil
}

// ParamsFrom 缺省值与 sklearn 一致：n_estimators=100、max_depth 不限、min_samples_split=2
func ParamsFrom(cfg sweep.Configuration, randomState int64) (Params, error) {
	p := Params{NEstimators: 100, MinSamplesSplit: 2, RandomState: randomState}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"n_estimators", &p.NEstimators},
		{"max_depth", &p.MaxDepth},
		{"min_samples_split", &p.MinSamplesSplit},
	} {
		v, ok := cfg.Get(f.name)
		if !ok {
			continue
		}
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return Params{}, fmt.Errorf("%s must be an integer, got %v", f.name, v)
		}
		// 先挡住溢出 int 的值，具体上限由 Validate 检查
		if math.Abs(v) > math.MaxInt32 {
			return Params{}, fmt.Errorf("%s out of range: %v", f.name, v)
		}
		*f.dst = int(v)
	}
	if v, ok := cfg.Get("max_depth"); ok && v < 1 {
		return Params{}, fmt.Errorf("max_depth must be >= 1, got %v", v)
	}
	return p, p.Validate()
}

func Accuracy(want, got []int) float64 {
	if len(want) == 0 {
		return 0
	}
	correct := 0
	for i := range want {
		if i < len(got) && want[i] == got[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(want))
}

// LogLoss 多分类交叉熵，概率裁剪到 [1e-15, 1-1e-15]
func LogLoss(want []int, proba [][]float64) float64 {
	if len(want) == 0 {
		return 0
	}
	const eps = 1e-15
	sum := 0.0
	for i, label := range want {
		p := clamp(proba[i][label], eps, 1-eps)
		sum -= math.Log(p)
	}
	return sum / float64(len(want))
}
